// Package flags defines the command line flags specific to the relay node,
// each bound to the environment variable of the same concern.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// TestnetFlag selects the sandbox attestation authority and destination
	// chain parameters.
	TestnetFlag = &cli.BoolFlag{
		Name:    "testnet",
		Usage:   "Run against the sandbox attestation authority and testnet destination chain",
		EnvVars: []string{"IS_TESTNET"},
	}
	// RouterAddressFlag is the destination router contract receiving
	// attested messages.
	RouterAddressFlag = &cli.StringFlag{
		Name:     "router-address",
		Usage:    "Address of the destination router contract (0x hex)",
		EnvVars:  []string{"ROUTER_ADDRESS"},
		Required: true,
	}
	// TransmitterAddressFlag is the message transmitter contract on the
	// destination chain whose logs accompany settlement.
	TransmitterAddressFlag = &cli.StringFlag{
		Name:     "transmitter-address",
		Usage:    "Address of the destination message transmitter contract (0x hex)",
		EnvVars:  []string{"TRANSMITTER_ADDRESS"},
		Required: true,
	}
	// EthereumRPCFlag is the destination chain JSON-RPC endpoint.
	EthereumRPCFlag = &cli.StringFlag{
		Name:     "ethereum-rpc-url",
		Usage:    "HTTP JSON-RPC endpoint of the destination chain",
		EnvVars:  []string{"ETHEREUM_RPC_URL"},
		Required: true,
	}
	// RelayerPrivateKeyFlag is the hex encoded secp256k1 key signing
	// destination transactions. Never logged; the derived address is.
	RelayerPrivateKeyFlag = &cli.StringFlag{
		Name:     "relayer-private-key",
		Usage:    "Hex encoded private key used to sign destination transactions",
		EnvVars:  []string{"RELAYER_PRIVATE_KEY"},
		Required: true,
	}
	// APIHostFlag defines the address the intake API listens on.
	APIHostFlag = &cli.StringFlag{
		Name:  "api-host",
		Usage: "Host on which the intake API listens",
		Value: "0.0.0.0",
	}
	// APIPortFlag defines the port the intake API listens on.
	APIPortFlag = &cli.IntFlag{
		Name:    "api-port",
		Usage:   "Port on which the intake API listens",
		EnvVars: []string{"API_PORT"},
		Value:   3000,
	}
	// PollCycleIntervalFlag is the sleep between attestation poller cycles.
	PollCycleIntervalFlag = &cli.IntFlag{
		Name:    "poll-cycle-interval-ms",
		Usage:   "Milliseconds between attestation poller cycles",
		EnvVars: []string{"POLL_CYCLE_INTERVAL_MS"},
		Value:   2000,
	}
	// AttestationTimeoutFlag bounds how long a job may wait for its
	// attestation before it is failed.
	AttestationTimeoutFlag = &cli.IntFlag{
		Name:    "attestation-timeout-ms",
		Usage:   "Milliseconds a job may await its attestation before failing",
		EnvVars: []string{"ATTESTATION_TIMEOUT_MS"},
		Value:   1800000,
	}
	// MaxRetriesFlag caps transient submission attempts per job.
	MaxRetriesFlag = &cli.Uint64Flag{
		Name:    "max-retries",
		Usage:   "Submission attempts before a job is failed",
		EnvVars: []string{"MAX_RETRIES"},
		Value:   3,
	}
	// SubmitterPollIntervalFlag is the submitter's idle sleep when no
	// attested jobs are queued.
	SubmitterPollIntervalFlag = &cli.IntFlag{
		Name:    "submitter-poll-interval-ms",
		Usage:   "Milliseconds the submitter sleeps when the attested queue is empty",
		EnvVars: []string{"SUBMITTER_POLL_INTERVAL_MS"},
		Value:   2000,
	}
	// RelayFeeFlag is the fee claim passed to receiveAndForward, in the
	// smallest unit of the transferred asset.
	RelayFeeFlag = &cli.StringFlag{
		Name:    "relay-fee",
		Usage:   "Fee claimed per relay, bounded by the sender's maximum inside the payload",
		EnvVars: []string{"RELAY_FEE"},
		Value:   "0",
	}
)
