// Package node is the main process for the relay node: it wires the job
// database, the attestation poller, the submitter, the intake API, and the
// monitoring surfaces into a service registry and manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/SeungheonOh/xreserve-relay/async"
	"github.com/SeungheonOh/xreserve-relay/cmd"
	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/SeungheonOh/xreserve-relay/io/file"
	"github.com/SeungheonOh/xreserve-relay/io/logs"
	"github.com/SeungheonOh/xreserve-relay/monitoring/backup"
	"github.com/SeungheonOh/xreserve-relay/monitoring/prometheus"
	"github.com/SeungheonOh/xreserve-relay/monitoring/tracing"
	"github.com/SeungheonOh/xreserve-relay/relayer/attestation"
	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/SeungheonOh/xreserve-relay/relayer/flags"
	"github.com/SeungheonOh/xreserve-relay/relayer/ratelimit"
	"github.com/SeungheonOh/xreserve-relay/relayer/rpc"
	"github.com/SeungheonOh/xreserve-relay/relayer/submitter"
	"github.com/SeungheonOh/xreserve-relay/runtime"
	"github.com/SeungheonOh/xreserve-relay/runtime/debug"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// RelayNode defines a struct that handles the services running the relay.
// It handles the lifecycle of the entire system and registers services to a
// service registry.
type RelayNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       db.Database
}

// New creates a new node instance, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*RelayNode, error) {
	if err := tracing.Setup(
		"relay-node", // Service name.
		cliCtx.String(cmd.TracingProcessNameFlag.Name),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	if cliCtx.Bool(flags.TestnetFlag.Name) {
		log.WithField("config", "testnet").Info("Using testnet deployment parameters")
		params.UseTestnetConfig()
	}
	if cliCtx.IsSet(cmd.RelayConfigFileFlag.Name) {
		params.LoadRelayConfigFile(cliCtx.String(cmd.RelayConfigFileFlag.Name))
	}
	if err := flags.ConfigureGlobalFlags(cliCtx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	relay := &RelayNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := relay.startDB(cliCtx); err != nil {
		return nil, err
	}

	if err := relay.registerAttestationService(); err != nil {
		return nil, err
	}
	if err := relay.registerSubmitterService(cliCtx); err != nil {
		return nil, err
	}
	if err := relay.registerRPCService(); err != nil {
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := relay.registerPrometheusService(cliCtx); err != nil {
			return nil, err
		}
	}

	return relay, nil
}

// Start the relay node and kick off every registered service.
func (r *RelayNode) Start() {
	r.lock.Lock()
	log.WithFields(logrus.Fields{
		"config":  params.RelayNodeConfig().ConfigName,
		"datadir": r.db.DatabasePath(),
	}).Info("Starting relay node")
	r.services.StartAll()
	startJobGaugeRefresher(r.ctx, r.db)
	stop := r.stop
	r.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		debug.Exit(r.cliCtx) // Ensure trace and CPU profile data are flushed.
		go r.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the relay node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (r *RelayNode) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	log.Info("Stopping relay node")
	r.services.StopAll()
	if err := r.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	r.cancel()
	close(r.stop)
}

func (r *RelayNode) startDB(cliCtx *cli.Context) error {
	dataDir, err := file.ExpandPath(cliCtx.String(cmd.DataDirFlag.Name))
	if err != nil {
		return err
	}
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	d, err := db.NewDB(r.ctx, dataDir)
	if err != nil {
		return errors.Wrap(err, "could not open relay database")
	}
	clearDBConfirmed := forceClearDB
	if clearDB && !forceClearDB {
		actionText := "This will delete your relay job database stored in your data directory. " +
			"This may lead to resubmitting transfers already relayed. Do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed {
		log.Warning("Removing database")
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(r.ctx, dataDir)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	r.db = d
	return nil
}

func (r *RelayNode) registerAttestationService() error {
	cfg := params.RelayNodeConfig()
	client, err := attestation.NewClient(
		cfg.AttestationBaseURL,
		attestation.WithTimeout(cfg.AttestationHTTPTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "could not set up attestation authority client")
	}
	svc := attestation.NewService(r.ctx, &attestation.Config{
		Database:           r.db,
		Client:             client,
		Limiter:            ratelimit.New(cfg.AttestationRate, cfg.AttestationBurst),
		RouterAddress:      flags.Get().RouterAddress,
		PollInterval:       flags.Get().PollCycleInterval,
		AttestationTimeout: flags.Get().AttestationTimeout,
	})
	return r.services.RegisterService(svc)
}

func (r *RelayNode) registerSubmitterService(cliCtx *cli.Context) error {
	keyHex := strings.TrimPrefix(strings.TrimSpace(cliCtx.String(flags.RelayerPrivateKeyFlag.Name)), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return errors.Wrap(err, "invalid relayer private key")
	}
	client, err := ethclient.DialContext(r.ctx, flags.Get().EthereumRPCURL)
	if err != nil {
		return errors.Wrap(err, "could not dial destination chain RPC")
	}
	log.WithField("endpoint", logs.MaskCredentialsLogging(flags.Get().EthereumRPCURL)).Info("Connected to destination chain RPC")
	svc, err := submitter.NewService(r.ctx, &submitter.Config{
		Database:           r.db,
		Chain:              client,
		PrivateKey:         key,
		RouterAddress:      flags.Get().RouterAddress,
		TransmitterAddress: flags.Get().TransmitterAddress,
		RelayFee:           flags.Get().RelayFee,
		MaxRetries:         flags.Get().MaxRetries,
		PollInterval:       flags.Get().SubmitterPollInterval,
	})
	if err != nil {
		return err
	}
	// The key itself never reaches the logs.
	log.WithField("relayer", svc.RelayerAddress().Hex()).Info("Loaded relayer signing key")
	return r.services.RegisterService(svc)
}

func (r *RelayNode) registerRPCService() error {
	svc := rpc.NewService(&rpc.Config{
		Host:     flags.Get().APIHost,
		Port:     flags.Get().APIPort,
		Database: r.db,
	})
	return r.services.RegisterService(svc)
}

func (r *RelayNode) registerPrometheusService(cliCtx *cli.Context) error {
	var additionalHandlers []prometheus.Handler
	additionalHandlers = append(
		additionalHandlers,
		prometheus.Handler{
			Path:    "/db/backup",
			Handler: backup.Handler(r.db, cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
		},
	)
	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(cmd.MonitoringPortFlag.Name)),
		r.services,
		additionalHandlers...,
	)
	return r.services.RegisterService(service)
}

// startJobGaugeRefresher keeps the per-status job gauges current.
func startJobGaugeRefresher(ctx context.Context, d db.ReadOnlyDatabase) {
	async.RunEvery(ctx, jobGaugeRefreshInterval, func() {
		refreshJobGauges(ctx, d)
	})
}
