package params

import "time"

const (
	// MainnetName is the config name for the production deployment.
	MainnetName = "mainnet"
	// TestnetName is the config name for the sandbox deployment.
	TestnetName = "testnet"
)

var mainnetRelayConfig = &RelayConfig{
	ConfigName: MainnetName,
	ChainID:    1,

	AttestationBaseURL:     "https://attest.xreserve.net",
	AttestationRate:        30,
	AttestationBurst:       30,
	AttestationHTTPTimeout: 10 * time.Second,
	RateLimitBackoff:       60 * time.Second,

	LocalDomain: 0,
	RecognizedSourceDomains: []uint32{1, 2, 3, 6, 7},
	SourceDomainNames: map[uint32]string{
		0: "ethereum",
		1: "avalanche",
		2: "optimism",
		3: "arbitrum",
		6: "base",
		7: "polygon",
	},

	PollBatchSize: 20,

	GasMarginPercent:    20,
	ReceiptWaitTimeout:  3 * time.Minute,
	ReceiptPollInterval: 2 * time.Second,
	SubmitterMinPause:   time.Second,

	IntakeRate:       20,
	IntakeBurst:      40,
	IntakeLimiterTTL: 10 * time.Minute,
}

// MainnetConfig returns the configuration to be used in the main network.
func MainnetConfig() *RelayConfig {
	return mainnetRelayConfig
}
