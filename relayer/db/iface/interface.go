// Package iface defines the actual database interface used by the relay
// node, with methods operating on relay jobs.
package iface

import (
	"context"
	"io"

	"github.com/SeungheonOh/xreserve-relay/monitoring/backup"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
)

// ReadOnlyDatabase defines a struct which only has read access to database methods.
type ReadOnlyDatabase interface {
	RelayJob(ctx context.Context, txHash string) (*types.RelayJob, error)
	HasRelayJob(ctx context.Context, txHash string) (bool, error)
	RelayJobsByStatus(ctx context.Context, statuses []types.JobStatus, limit int) ([]*types.RelayJob, error)
	OldestRelayJobByStatus(ctx context.Context, status types.JobStatus) (*types.RelayJob, error)
	CountRelayJobsByStatus(ctx context.Context) (map[types.JobStatus]uint64, error)
	DatabasePath() string
}

// Database represents a full access database with the proper DB helper methods.
type Database interface {
	io.Closer
	backup.Exporter
	ReadOnlyDatabase

	SaveRelayJob(ctx context.Context, job *types.RelayJob) error
	MarkJobPolling(ctx context.Context, txHash string) error
	IncrementPollAttempts(ctx context.Context, txHash string) error
	SaveJobAttested(ctx context.Context, txHash, message, attestation, eventNonce string) error
	MarkJobSubmitted(ctx context.Context, txHash, destTxHash string) error
	MarkJobConfirmed(ctx context.Context, txHash string, outcome types.Outcome, blockNumber uint64) error
	MarkJobFailed(ctx context.Context, txHash, reason string) error
	MarkJobSubmissionFailed(ctx context.Context, txHash, reason string) error
	RequeueJobSubmissionFailure(ctx context.Context, txHash, reason string) (*types.RelayJob, error)

	ClearDB() error
}
