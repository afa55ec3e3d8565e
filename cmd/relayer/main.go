// Package main defines the relay node entry point. The relay node accepts
// burn transactions from recognized source chains, polls the attestation
// authority for their signed messages, and submits them to the destination
// router until each transfer reaches a terminal state.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/SeungheonOh/xreserve-relay/cmd"
	"github.com/SeungheonOh/xreserve-relay/io/logs"
	"github.com/SeungheonOh/xreserve-relay/relayer/flags"
	"github.com/SeungheonOh/xreserve-relay/relayer/node"
	"github.com/SeungheonOh/xreserve-relay/runtime/debug"
	"github.com/SeungheonOh/xreserve-relay/runtime/version"
	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	relay, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	relay.Start()
	return nil
}

var appFlags = []cli.Flag{
	flags.TestnetFlag,
	flags.RouterAddressFlag,
	flags.TransmitterAddressFlag,
	flags.EthereumRPCFlag,
	flags.RelayerPrivateKeyFlag,
	flags.RelayFeeFlag,
	flags.APIHostFlag,
	flags.APIPortFlag,
	flags.PollCycleIntervalFlag,
	flags.AttestationTimeoutFlag,
	flags.MaxRetriesFlag,
	flags.SubmitterPollIntervalFlag,
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.DisableMonitoringFlag,
	cmd.MonitoringHostFlag,
	cmd.MonitoringPortFlag,
	cmd.BackupWebhookOutputDir,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.ConfigFileFlag,
	cmd.RelayConfigFileFlag,
	debug.PProfFlag,
	debug.PProfAddrFlag,
	debug.PProfPortFlag,
	debug.MemProfileRateFlag,
	debug.CPUProfileFlag,
	debug.TraceFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "relay-node"
	app.Usage = "relays attested cross-chain transfers to their destination router"
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logs.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return debug.Setup(ctx)
	}

	app.After = func(ctx *cli.Context) error {
		debug.Exit(ctx)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
