package flags

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// GlobalFlags specifies all the global flags for the relay node.
type GlobalFlags struct {
	IsTestnet             bool
	RouterAddress         common.Address
	TransmitterAddress    common.Address
	EthereumRPCURL        string
	APIHost               string
	APIPort               int
	PollCycleInterval     time.Duration
	AttestationTimeout    time.Duration
	SubmitterPollInterval time.Duration
	MaxRetries            uint64
	RelayFee              *big.Int
}

var globalConfig *GlobalFlags

// Get retrieves the global config.
func Get() *GlobalFlags {
	if globalConfig == nil {
		return &GlobalFlags{RelayFee: big.NewInt(0)}
	}
	return globalConfig
}

// Init sets the global config equal to the config that is passed in.
func Init(c *GlobalFlags) {
	globalConfig = c
}

// ConfigureGlobalFlags initializes the global config based on the provided
// cli context. Malformed addresses and fee values are reported here, before
// any service starts.
func ConfigureGlobalFlags(cliCtx *cli.Context) error {
	cfg := &GlobalFlags{
		IsTestnet:             cliCtx.Bool(TestnetFlag.Name),
		EthereumRPCURL:        cliCtx.String(EthereumRPCFlag.Name),
		APIHost:               cliCtx.String(APIHostFlag.Name),
		APIPort:               cliCtx.Int(APIPortFlag.Name),
		PollCycleInterval:     time.Duration(cliCtx.Int(PollCycleIntervalFlag.Name)) * time.Millisecond,
		AttestationTimeout:    time.Duration(cliCtx.Int(AttestationTimeoutFlag.Name)) * time.Millisecond,
		SubmitterPollInterval: time.Duration(cliCtx.Int(SubmitterPollIntervalFlag.Name)) * time.Millisecond,
		MaxRetries:            cliCtx.Uint64(MaxRetriesFlag.Name),
	}

	router := cliCtx.String(RouterAddressFlag.Name)
	if !common.IsHexAddress(router) {
		return errors.Errorf("invalid router address %q", router)
	}
	cfg.RouterAddress = common.HexToAddress(router)

	transmitter := cliCtx.String(TransmitterAddressFlag.Name)
	if !common.IsHexAddress(transmitter) {
		return errors.Errorf("invalid transmitter address %q", transmitter)
	}
	cfg.TransmitterAddress = common.HexToAddress(transmitter)

	fee, ok := new(big.Int).SetString(strings.TrimSpace(cliCtx.String(RelayFeeFlag.Name)), 10)
	if !ok || fee.Sign() < 0 {
		return errors.Errorf("invalid relay fee %q", cliCtx.String(RelayFeeFlag.Name))
	}
	cfg.RelayFee = fee

	if cfg.PollCycleInterval <= 0 || cfg.SubmitterPollInterval <= 0 || cfg.AttestationTimeout <= 0 {
		return errors.New("poller and submitter intervals must be positive")
	}

	Init(cfg)
	return nil
}
