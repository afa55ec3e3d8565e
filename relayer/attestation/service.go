// Package attestation polls the attestation authority for pending relay
// jobs and advances them to attested once a complete attestation passes
// message validation. Every authority request goes through a process-wide
// rate limiter; a throttle response backs the whole poller off.
package attestation

import (
	"context"
	"time"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/SeungheonOh/xreserve-relay/relayer/message"
	"github.com/SeungheonOh/xreserve-relay/relayer/ratelimit"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/runtime"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

var _ runtime.Service = (*Service)(nil)

const attestationTimeoutReason = "attestation_timeout"

// Config options for the attestation poller service.
type Config struct {
	Database           db.Database
	Client             *Client
	Limiter            *ratelimit.Limiter
	RouterAddress      common.Address
	PollInterval       time.Duration
	AttestationTimeout time.Duration
}

// Service polls the attestation authority on a fixed cadence and writes
// every job transition straight to the store.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService initializes the poller from its config.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start the poller loop.
func (s *Service) Start() {
	log.WithFields(map[string]interface{}{
		"authority":    s.cfg.Client.BaseURL().String(),
		"pollInterval": s.cfg.PollInterval,
		"timeout":      s.cfg.AttestationTimeout,
	}).Info("Starting attestation poller")
	go s.run()
}

// Stop the poller loop.
func (s *Service) Stop() error {
	s.cancel()
	log.Info("Stopping attestation poller")
	return nil
}

// Status always returns nil; a wedged authority shows up as stalled jobs
// and metrics, not as an unhealthy service.
func (s *Service) Status() error {
	return nil
}

func (s *Service) run() {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			log.Debug("Context closed, exiting poll loop")
			return
		case <-ticker.C:
			s.pollOnce(s.ctx)
		}
	}
}

// pollOnce runs a single poll cycle: the oldest batch of pending and
// polling jobs, each advanced independently. A throttle response from the
// authority aborts the remainder of the cycle without advancing any job.
func (s *Service) pollOnce(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "attestation.pollOnce")
	defer span.End()
	pollCyclesTotal.Inc()

	jobs, err := s.cfg.Database.RelayJobsByStatus(
		ctx,
		[]types.JobStatus{types.StatusPending, types.StatusPolling},
		params.RelayNodeConfig().PollBatchSize,
	)
	if err != nil {
		log.WithError(err).Error("Could not fetch jobs awaiting attestation")
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		throttled, err := s.processJob(ctx, job)
		if err != nil {
			log.WithError(err).WithField("txHash", job.TxHash).Error("Could not advance relay job")
		}
		if throttled {
			s.backoff(ctx)
			return
		}
	}
}

// processJob advances one job by a single authority query. The returned
// bool requests a global backoff.
func (s *Service) processJob(ctx context.Context, job *types.RelayJob) (bool, error) {
	if job.Age(time.Now().UTC()) > s.cfg.AttestationTimeout {
		log.WithFields(map[string]interface{}{
			"txHash":       job.TxHash,
			"sourceDomain": job.SourceDomain,
			"pollAttempts": job.PollAttempts,
		}).Warn("Attestation never arrived, failing job")
		attestationTimeoutsTotal.Inc()
		return false, s.cfg.Database.MarkJobFailed(ctx, job.TxHash, attestationTimeoutReason)
	}

	// Persisted before the first query so a crash leaves the job resumable.
	if job.Status == types.StatusPending {
		if err := s.cfg.Database.MarkJobPolling(ctx, job.TxHash); err != nil {
			return false, errors.Wrap(err, "could not mark job polling")
		}
	}

	if err := s.cfg.Limiter.Acquire(ctx); err != nil {
		// Shutdown while waiting for a token.
		return false, nil
	}

	msgs, err := s.cfg.Client.GetMessages(ctx, job.SourceDomain, job.TxHash)
	switch {
	case errors.Is(err, ErrRateLimited):
		authorityResponsesTotal.WithLabelValues("rate_limited").Inc()
		log.WithField("txHash", job.TxHash).Warn("Attestation authority throttled us, backing off")
		return true, nil
	case errors.Is(err, ErrNotReady):
		authorityResponsesTotal.WithLabelValues("not_ready").Inc()
		return false, s.cfg.Database.IncrementPollAttempts(ctx, job.TxHash)
	case err != nil:
		authorityResponsesTotal.WithLabelValues("error").Inc()
		log.WithError(err).WithField("txHash", job.TxHash).Warn("Attestation authority query failed, will retry")
		return false, s.cfg.Database.IncrementPollAttempts(ctx, job.TxHash)
	}

	if len(msgs.Messages) == 0 {
		authorityResponsesTotal.WithLabelValues("empty").Inc()
		log.WithField("txHash", job.TxHash).Warn("Attestation authority returned no messages")
		return false, s.cfg.Database.IncrementPollAttempts(ctx, job.TxHash)
	}
	if len(msgs.Messages) > 1 {
		// One job per source tx hash: the first entry wins.
		log.WithFields(map[string]interface{}{
			"txHash":   job.TxHash,
			"messages": len(msgs.Messages),
		}).Warn("Multiple attested messages for one transaction, using the first")
	}
	msg := msgs.Messages[0]
	if !msg.Complete() {
		authorityResponsesTotal.WithLabelValues("pending").Inc()
		return false, s.cfg.Database.IncrementPollAttempts(ctx, job.TxHash)
	}
	authorityResponsesTotal.WithLabelValues("complete").Inc()

	raw, err := hexutil.Decode(msg.Message)
	if err != nil {
		reason := errors.Wrap(err, "malformed attested message").Error()
		validationFailuresTotal.Inc()
		log.WithField("txHash", job.TxHash).Error(reason)
		return false, s.cfg.Database.MarkJobFailed(ctx, job.TxHash, reason)
	}
	details, err := message.Validate(raw, s.cfg.RouterAddress)
	if err != nil {
		validationFailuresTotal.Inc()
		log.WithError(err).WithField("txHash", job.TxHash).Error("Attested message failed validation")
		return false, s.cfg.Database.MarkJobFailed(ctx, job.TxHash, err.Error())
	}

	if err := s.cfg.Database.SaveJobAttested(ctx, job.TxHash, msg.Message, msg.Attestation, msg.EventNonce); err != nil {
		return false, errors.Wrap(err, "could not save attested job")
	}
	attestedJobsTotal.Inc()
	log.WithFields(map[string]interface{}{
		"txHash":       job.TxHash,
		"sourceDomain": job.SourceDomain,
		"source":       params.RelayNodeConfig().SourceDomainName(job.SourceDomain),
		"eventNonce":   msg.EventNonce,
		"amount":       details.Amount.String(),
	}).Info("Attestation received, job queued for submission")
	return false, nil
}

// backoff sleeps out the authority's throttle window unless shut down first.
func (s *Service) backoff(ctx context.Context) {
	authorityBackoffsTotal.Inc()
	select {
	case <-ctx.Done():
	case <-time.After(params.RelayNodeConfig().RateLimitBackoff):
	}
}
