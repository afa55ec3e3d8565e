// Package types defines the relay job model shared across the relay node's
// services.
package types

import (
	"time"
)

// JobStatus describes where a relay job stands in its lifecycle.
type JobStatus string

const (
	// StatusPending is assigned at intake, before the first attestation poll.
	StatusPending JobStatus = "pending"
	// StatusPolling means the job has been picked up by the attestation poller.
	StatusPolling JobStatus = "polling"
	// StatusAttested means a complete attestation has been stored and the job
	// awaits submission.
	StatusAttested JobStatus = "attested"
	// StatusSubmitted means a destination transaction has been broadcast and
	// the job awaits its receipt.
	StatusSubmitted JobStatus = "submitted"
	// StatusConfirmed is terminal: the destination transaction succeeded.
	StatusConfirmed JobStatus = "confirmed"
	// StatusFailed is terminal: the job was abandoned with an error reason.
	StatusFailed JobStatus = "failed"
)

// Statuses lists every job status in lifecycle order.
func Statuses() []JobStatus {
	return []JobStatus{
		StatusPending,
		StatusPolling,
		StatusAttested,
		StatusSubmitted,
		StatusConfirmed,
		StatusFailed,
	}
}

// Terminal reports whether a job in this status can never change again.
func (s JobStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}

// Outcome describes how a confirmed relay settled on the destination chain.
type Outcome string

const (
	// OutcomeForwarded is the happy path: funds were forwarded to the final
	// recipient in the same transaction.
	OutcomeForwarded Outcome = "forwarded"
	// OutcomeFallback means funds were delivered to the fallback recipient.
	OutcomeFallback Outcome = "fallback"
	// OutcomeOperatorRouted means the transfer was parked for manual routing
	// by the operator.
	OutcomeOperatorRouted Outcome = "operator_routed"
	// OutcomeUnknown means the transaction succeeded but emitted none of the
	// recognized settlement events.
	OutcomeUnknown Outcome = "unknown"
)

func (o Outcome) String() string {
	return string(o)
}

// RelayJob is the durable record of a single cross-chain transfer relay,
// keyed by the source chain burn transaction hash.
type RelayJob struct {
	TxHash          string     `json:"tx_hash"`
	SourceDomain    uint32     `json:"source_domain"`
	Status          JobStatus  `json:"status"`
	Message         string     `json:"message,omitempty"`
	Attestation     string     `json:"attestation,omitempty"`
	EventNonce      string     `json:"event_nonce,omitempty"`
	DestTxHash      string     `json:"dest_tx_hash,omitempty"`
	DestBlockNumber uint64     `json:"dest_block_number,omitempty"`
	Outcome         Outcome    `json:"outcome,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	RetryCount      uint64     `json:"retry_count"`
	PollAttempts    uint64     `json:"poll_attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AttestedAt      *time.Time `json:"attested_at,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
}

// Finalized reports whether the job has reached a terminal status.
func (j *RelayJob) Finalized() bool {
	return j.Status.Terminal()
}

// Age of the job relative to now.
func (j *RelayJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}
