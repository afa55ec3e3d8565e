package params

// UseTestnetConfig sets the sandbox deployment as the active config.
func UseTestnetConfig() {
	relayConfig = TestnetConfig()
}

// TestnetConfig defines the config for the sandbox deployment: the
// authority sandbox endpoint and the Sepolia destination chain. Pacing
// constants match mainnet so behavior under test mirrors production.
func TestnetConfig() *RelayConfig {
	cfg := MainnetConfig().Copy()
	cfg.ConfigName = TestnetName
	cfg.ChainID = 11155111
	cfg.AttestationBaseURL = "https://attest-sandbox.xreserve.net"
	return cfg
}
