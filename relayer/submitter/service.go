// Package submitter drives attested relay jobs through signed destination
// transactions. It is strictly sequential: one transaction in flight at a
// time, so the signer's nonce is managed implicitly and every failure is
// attributable to exactly one job.
package submitter

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/SeungheonOh/xreserve-relay/relayer/router"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/runtime"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

var _ runtime.Service = (*Service)(nil)

// ChainCaller is the narrow slice of the destination chain client the
// submitter depends on. *ethclient.Client satisfies it.
type ChainCaller interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
}

// Config options for the submitter service.
type Config struct {
	Database           db.Database
	Chain              ChainCaller
	PrivateKey         *ecdsa.PrivateKey
	RouterAddress      common.Address
	TransmitterAddress common.Address
	RelayFee           *big.Int
	MaxRetries         uint64
	PollInterval       time.Duration
}

// Service submits attested jobs to the destination router one at a time,
// waits out their receipts, and classifies the settlement outcome.
type Service struct {
	cfg     *Config
	ctx     context.Context
	cancel  context.CancelFunc
	from    common.Address
	chainID *big.Int
}

// NewService initializes the submitter, deriving the relayer address from
// the signing key and pinning the destination chain id. A wrong RPC
// endpoint or unreachable chain surfaces here, before any service starts.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("submitter requires a signing key")
	}
	chainCtx, cancelQuery := context.WithTimeout(ctx, 10*time.Second)
	defer cancelQuery()
	chainID, err := cfg.Chain.ChainID(chainCtx)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch destination chain id")
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		from:    crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		chainID: chainID,
	}, nil
}

// RelayerAddress derived from the signing key.
func (s *Service) RelayerAddress() common.Address {
	return s.from
}

// Start the recovery sweep followed by the submission loop.
func (s *Service) Start() {
	log.WithFields(map[string]interface{}{
		"relayer": s.from.Hex(),
		"router":  s.cfg.RouterAddress.Hex(),
		"chainID": s.chainID.String(),
	}).Info("Starting submitter")
	go s.run()
}

// Stop the submission loop.
func (s *Service) Stop() error {
	s.cancel()
	log.Info("Stopping submitter")
	return nil
}

// Status always returns nil; submission failures are per-job conditions.
func (s *Service) Status() error {
	return nil
}

func (s *Service) run() {
	s.recoverSubmitted(s.ctx)
	for {
		if s.ctx.Err() != nil {
			log.Debug("Context closed, exiting submit loop")
			return
		}
		job, err := s.cfg.Database.OldestRelayJobByStatus(s.ctx, types.StatusAttested)
		if err != nil {
			log.WithError(err).Error("Could not fetch attested jobs")
			s.sleep(s.cfg.PollInterval)
			continue
		}
		if job == nil {
			s.sleep(s.cfg.PollInterval)
			continue
		}
		s.process(s.ctx, job)
		// Lower bound between submissions, so a persistently failing job
		// cannot spin the loop.
		s.sleep(params.RelayNodeConfig().SubmitterMinPause)
	}
}

// process runs one job through dry-run, broadcast, confirmation, and
// classification. Errors never escape: they are classified and persisted.
func (s *Service) process(ctx context.Context, job *types.RelayJob) {
	ctx, span := trace.StartSpan(ctx, "submitter.process")
	defer span.End()

	msgBytes, err := hexutil.Decode(job.Message)
	if err != nil {
		s.handleFailure(ctx, job, errors.Wrap(err, "malformed stored message"))
		return
	}
	attBytes, err := hexutil.Decode(job.Attestation)
	if err != nil {
		s.handleFailure(ctx, job, errors.Wrap(err, "malformed stored attestation"))
		return
	}
	calldata, err := router.PackReceiveAndForward(msgBytes, attBytes, s.cfg.RelayFee)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}
	call := ethereum.CallMsg{
		From: s.from,
		To:   &s.cfg.RouterAddress,
		Data: calldata,
	}

	// Dry run first: most terminal conditions (settled transfer, consumed
	// nonce, policy violations) revert here, before any fee is spent.
	if _, err := s.cfg.Chain.CallContract(ctx, call, nil); err != nil {
		s.handleFailure(ctx, job, errors.Wrap(err, "simulation reverted"))
		return
	}

	signedTx, err := s.buildAndSign(ctx, call)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}
	if err := s.cfg.Chain.SendTransaction(ctx, signedTx); err != nil {
		s.handleFailure(ctx, job, errors.Wrap(err, "broadcast failed"))
		return
	}
	submissionsTotal.Inc()
	broadcastAt := time.Now()
	destTxHash := signedTx.Hash()
	log.WithFields(map[string]interface{}{
		"txHash":     job.TxHash,
		"destTxHash": destTxHash.Hex(),
		"relayFee":   s.cfg.RelayFee.String(),
	}).Info("Destination transaction broadcast")

	// Persisted before the receipt wait so a crash mid-wait is recovered
	// by the startup sweep instead of a duplicate broadcast.
	if err := s.cfg.Database.MarkJobSubmitted(ctx, job.TxHash, destTxHash.Hex()); err != nil {
		log.WithError(err).WithField("txHash", job.TxHash).Error("Could not persist submitted transition")
		return
	}

	receipt, err := s.waitForReceipt(ctx, destTxHash)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}
	submissionLatency.Observe(time.Since(broadcastAt).Seconds())
	s.finalize(ctx, job.TxHash, receipt)
}

// buildAndSign assembles a dynamic fee transaction from a simulation-derived
// gas budget with a fixed safety margin.
func (s *Service) buildAndSign(ctx context.Context, call ethereum.CallMsg) (*gethtypes.Transaction, error) {
	gas, err := s.cfg.Chain.EstimateGas(ctx, call)
	if err != nil {
		return nil, errors.Wrap(err, "gas estimation failed")
	}
	gas += gas * params.RelayNodeConfig().GasMarginPercent / 100

	head, err := s.cfg.Chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch chain head")
	}
	tip, err := s.cfg.Chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch gas tip cap")
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	nonce, err := s.cfg.Chain.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch pending nonce")
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        call.To,
		Data:      call.Data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(s.chainID), s.cfg.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not sign transaction")
	}
	return signed, nil
}

// waitForReceipt polls until the transaction is mined or the configured
// wait budget runs out. A failed receipt is reported as a revert.
func (s *Service) waitForReceipt(ctx context.Context, destTxHash common.Hash) (*gethtypes.Receipt, error) {
	cfg := params.RelayNodeConfig()
	deadline := time.Now().Add(cfg.ReceiptWaitTimeout)
	for {
		receipt, err := s.cfg.Chain.TransactionReceipt(ctx, destTxHash)
		if err == nil {
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, errors.Errorf("execution reverted in %s", destTxHash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).WithField("destTxHash", destTxHash.Hex()).Warn("Receipt query failed, retrying")
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timed out waiting for receipt of %s", destTxHash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ReceiptPollInterval):
		}
	}
}

// finalize classifies a successful receipt and confirms the job.
func (s *Service) finalize(ctx context.Context, txHash string, receipt *gethtypes.Receipt) {
	outcome, recovered := router.ClassifyReceipt(receipt.Logs, s.cfg.RouterAddress, s.cfg.TransmitterAddress)
	fields := map[string]interface{}{
		"txHash":          txHash,
		"destTxHash":      receipt.TxHash.Hex(),
		"destBlockNumber": receipt.BlockNumber.Uint64(),
		"outcome":         outcome.String(),
	}
	if recovered {
		recoveredNonceTotal.Inc()
		log.WithFields(fields).Warn("Settlement recovered a previously consumed nonce")
	}
	switch outcome {
	case types.OutcomeForwarded:
		log.WithFields(fields).Info("Relay confirmed, funds forwarded")
	case types.OutcomeFallback:
		log.WithFields(fields).Warn("Relay confirmed via fallback recipient")
	case types.OutcomeOperatorRouted:
		log.WithFields(fields).Warn("Relay confirmed but routed to the operator wallet")
	default:
		log.WithFields(fields).Warn("Relay confirmed without a recognized settlement event")
	}
	if err := s.cfg.Database.MarkJobConfirmed(ctx, txHash, outcome, receipt.BlockNumber.Uint64()); err != nil {
		log.WithError(err).WithField("txHash", txHash).Error("Could not persist confirmed transition")
		return
	}
	confirmationsTotal.WithLabelValues(outcome.String()).Inc()
}

// handleFailure routes a submission error through the terminal/transient
// classifier and persists the resulting transition.
func (s *Service) handleFailure(ctx context.Context, job *types.RelayJob, submitErr error) {
	reason := submitErr.Error()
	logFields := log.WithFields(map[string]interface{}{
		"txHash":     job.TxHash,
		"retryCount": job.RetryCount,
	})
	if Terminal(reason) {
		terminalFailuresTotal.Inc()
		logFields.WithError(submitErr).Error("Terminal submission failure, abandoning job")
		if err := s.cfg.Database.MarkJobSubmissionFailed(ctx, job.TxHash, reason); err != nil {
			logFields.WithError(err).Error("Could not persist terminal failure")
		}
		return
	}
	updated, err := s.cfg.Database.RequeueJobSubmissionFailure(ctx, job.TxHash, reason)
	if err != nil {
		logFields.WithError(err).Error("Could not requeue failed submission")
		return
	}
	submissionRetriesTotal.Inc()
	if updated.RetryCount >= s.cfg.MaxRetries {
		logFields.WithError(submitErr).Error("Submission retries exhausted, abandoning job")
		if err := s.cfg.Database.MarkJobFailed(ctx, job.TxHash, reason); err != nil {
			logFields.WithError(err).Error("Could not persist exhausted failure")
		}
		return
	}
	logFields.WithError(submitErr).Warnf("Transient submission failure, attempt %d of %d", updated.RetryCount, s.cfg.MaxRetries)
}

// recoverSubmitted closes the crash-after-broadcast window: jobs left in
// submitted are finalized from their receipt, awaited if still pending in
// the mempool, or requeued if the transaction dropped.
func (s *Service) recoverSubmitted(ctx context.Context) {
	jobs, err := s.cfg.Database.RelayJobsByStatus(ctx, []types.JobStatus{types.StatusSubmitted}, 0)
	if err != nil {
		log.WithError(err).Error("Could not sweep submitted jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}
	log.WithField("jobs", len(jobs)).Info("Recovering jobs submitted before restart")
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		s.recoverJob(ctx, job)
	}
}

func (s *Service) recoverJob(ctx context.Context, job *types.RelayJob) {
	destTxHash := common.HexToHash(job.DestTxHash)
	receipt, err := s.cfg.Chain.TransactionReceipt(ctx, destTxHash)
	if err == nil {
		if receipt.Status != gethtypes.ReceiptStatusSuccessful {
			s.handleFailure(ctx, job, errors.Errorf("execution reverted in %s", destTxHash.Hex()))
			return
		}
		s.finalize(ctx, job.TxHash, receipt)
		return
	}
	if !errors.Is(err, ethereum.NotFound) {
		log.WithError(err).WithField("txHash", job.TxHash).Warn("Could not look up submitted transaction, leaving job for next sweep")
		return
	}
	_, _, err = s.cfg.Chain.TransactionByHash(ctx, destTxHash)
	if err == nil {
		// Still in the mempool: wait out the receipt like a fresh broadcast.
		receipt, err := s.waitForReceipt(ctx, destTxHash)
		if err != nil {
			s.handleFailure(ctx, job, err)
			return
		}
		s.finalize(ctx, job.TxHash, receipt)
		return
	}
	if errors.Is(err, ethereum.NotFound) {
		log.WithFields(map[string]interface{}{
			"txHash":     job.TxHash,
			"destTxHash": job.DestTxHash,
		}).Warn("Submitted transaction dropped, requeueing")
		s.handleFailure(ctx, job, errors.New("transaction dropped"))
		return
	}
	log.WithError(err).WithField("txHash", job.TxHash).Warn("Could not look up submitted transaction, leaving job for next sweep")
}

// sleep waits out d unless the service is stopped first.
func (s *Service) sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(d):
	}
}
