// Package params defines important configuration options for the relay node,
// such as attestation authority endpoints, recognized source domains, and
// pacing constants for the poller and submitter.
package params

import (
	"time"

	"github.com/mohae/deepcopy"
)

// RelayConfig contains constants and operational tunables for the relay node.
// Values here describe the protocol deployment; per-process settings such as
// keys and ports come from flags.
type RelayConfig struct {
	// Deployment identity.
	ConfigName string `yaml:"CONFIG_NAME"` // ConfigName for the deployment, e.g. mainnet.
	ChainID    uint64 `yaml:"CHAIN_ID"`    // ChainID of the destination chain.

	// Attestation authority constants.
	AttestationBaseURL   string        `yaml:"ATTESTATION_BASE_URL"`   // AttestationBaseURL is the authority API root.
	AttestationRate      float64       `yaml:"ATTESTATION_RATE"`       // AttestationRate limits authority requests per second.
	AttestationBurst     int           `yaml:"ATTESTATION_BURST"`      // AttestationBurst is the token bucket capacity.
	AttestationHTTPTimeout time.Duration `yaml:"ATTESTATION_HTTP_TIMEOUT"` // AttestationHTTPTimeout bounds a single authority request.
	RateLimitBackoff     time.Duration `yaml:"RATE_LIMIT_BACKOFF"`     // RateLimitBackoff applied after an authority 429.

	// Transfer domains.
	LocalDomain             uint32            `yaml:"LOCAL_DOMAIN"`              // LocalDomain is the destination domain identifier.
	RecognizedSourceDomains []uint32          `yaml:"RECOGNIZED_SOURCE_DOMAINS"` // RecognizedSourceDomains accepted at intake.
	SourceDomainNames       map[uint32]string `yaml:"SOURCE_DOMAIN_NAMES"`       // SourceDomainNames for human readable logging.

	// Poller pacing.
	PollBatchSize int `yaml:"POLL_BATCH_SIZE"` // PollBatchSize caps jobs fetched per poll cycle.

	// Submitter pacing.
	GasMarginPercent    uint64        `yaml:"GAS_MARGIN_PERCENT"`    // GasMarginPercent added on top of estimated gas.
	ReceiptWaitTimeout  time.Duration `yaml:"RECEIPT_WAIT_TIMEOUT"`  // ReceiptWaitTimeout bounds confirmation waits.
	ReceiptPollInterval time.Duration `yaml:"RECEIPT_POLL_INTERVAL"` // ReceiptPollInterval between receipt queries.
	SubmitterMinPause   time.Duration `yaml:"SUBMITTER_MIN_PAUSE"`   // SubmitterMinPause between consecutive submissions.

	// Intake API throttling.
	IntakeRate       float64       `yaml:"INTAKE_RATE"`        // IntakeRate limits requests per second per client.
	IntakeBurst      int           `yaml:"INTAKE_BURST"`       // IntakeBurst is the per client burst allowance.
	IntakeLimiterTTL time.Duration `yaml:"INTAKE_LIMITER_TTL"` // IntakeLimiterTTL evicts idle client limiters.
}

var relayConfig = MainnetConfig()

// RelayNodeConfig retrieves the relay node config.
func RelayNodeConfig() *RelayConfig {
	return relayConfig
}

// OverrideRelayConfig by replacing the config. The preferred pattern is to
// call RelayNodeConfig(), change the specific parameters, and then call
// OverrideRelayConfig(c). Any subsequent calls to params.RelayNodeConfig()
// will return this new configuration.
func OverrideRelayConfig(c *RelayConfig) {
	relayConfig = c
}

// Copy returns a copy of the config object.
func (c *RelayConfig) Copy() *RelayConfig {
	config, ok := deepcopy.Copy(*c).(RelayConfig)
	if !ok {
		config = *relayConfig
	}
	return &config
}

// SourceDomainName resolves a human readable name for a source domain
// identifier, falling back to "unknown" for unrecognized values.
func (c *RelayConfig) SourceDomainName(domain uint32) string {
	if name, ok := c.SourceDomainNames[domain]; ok {
		return name
	}
	return "unknown"
}

// IsRecognizedSourceDomain reports whether the given domain is in the
// closed set of source domains accepted at intake. The local destination
// domain is never a valid source.
func (c *RelayConfig) IsRecognizedSourceDomain(domain uint32) bool {
	if domain == c.LocalDomain {
		return false
	}
	for _, d := range c.RecognizedSourceDomains {
		if d == domain {
			return true
		}
	}
	return false
}
