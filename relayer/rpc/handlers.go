package rpc

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/SeungheonOh/xreserve-relay/network/httputil"
	"github.com/SeungheonOh/xreserve-relay/relayer/db/kv"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// SubmitRelayRequest is the intake body for a new relay job.
type SubmitRelayRequest struct {
	SourceDomain uint32 `json:"sourceDomain"`
	TxHash       string `json:"txHash"`
}

// SubmitRelayResponse acknowledges an intake request.
type SubmitRelayResponse struct {
	TxHash  string `json:"txHash"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RelayJobResponse is the projection of a job exposed to API clients. The
// attested payload and operational counters stay internal.
type RelayJobResponse struct {
	TxHash       string     `json:"txHash"`
	SourceDomain uint32     `json:"sourceDomain"`
	Status       string     `json:"status"`
	Outcome      string     `json:"outcome,omitempty"`
	Error        string     `json:"error,omitempty"`
	DestTxHash   string     `json:"destTxHash,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	AttestedAt   *time.Time `json:"attestedAt,omitempty"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
}

// HealthResponse reports store reachability and per-status job counts.
type HealthResponse struct {
	Status string            `json:"status"`
	Jobs   map[string]uint64 `json:"jobs,omitempty"`
}

func writeErrorJson(w http.ResponseWriter, msg string, code int) {
	httputil.WriteJsonWithStatus(w, map[string]string{"error": msg}, code)
}

// SubmitRelay admits a new relay job. The tx hash is the idempotency key:
// replaying a tracked hash returns the existing job unchanged with a 200.
func (s *Service) SubmitRelay(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.SubmitRelay")
	defer span.End()

	var req SubmitRelayRequest
	if err := httputil.ReadJson(r, &req); err != nil {
		rejectedIntakeTotal.Inc()
		writeErrorJson(w, err.Error(), http.StatusBadRequest)
		return
	}
	txHash := strings.ToLower(req.TxHash)
	if !txHashRegex.MatchString(txHash) {
		rejectedIntakeTotal.Inc()
		writeErrorJson(w, "txHash must be a 0x-prefixed 32 byte hex string", http.StatusBadRequest)
		return
	}
	cfg := params.RelayNodeConfig()
	if !cfg.IsRecognizedSourceDomain(req.SourceDomain) {
		rejectedIntakeTotal.Inc()
		writeErrorJson(w, "unrecognized source domain", http.StatusBadRequest)
		return
	}

	if existing, err := s.cfg.Database.RelayJob(ctx, txHash); err == nil {
		duplicateIntakeTotal.Inc()
		httputil.WriteJson(w, &SubmitRelayResponse{
			TxHash:  existing.TxHash,
			Status:  existing.Status.String(),
			Message: "Relay job already tracked",
		})
		return
	} else if !errors.Is(err, kv.ErrNotFound) {
		writeErrorJson(w, "could not query job store", http.StatusInternalServerError)
		return
	}

	job := &types.RelayJob{
		TxHash:       txHash,
		SourceDomain: req.SourceDomain,
		Status:       types.StatusPending,
	}
	if err := s.cfg.Database.SaveRelayJob(ctx, job); err != nil {
		// Lost a race with a concurrent intake of the same hash.
		if errors.Is(err, kv.ErrJobExists) {
			if existing, getErr := s.cfg.Database.RelayJob(ctx, txHash); getErr == nil {
				duplicateIntakeTotal.Inc()
				httputil.WriteJson(w, &SubmitRelayResponse{
					TxHash:  existing.TxHash,
					Status:  existing.Status.String(),
					Message: "Relay job already tracked",
				})
				return
			}
		}
		log.WithError(err).WithField("txHash", txHash).Error("Could not persist relay job")
		writeErrorJson(w, "could not persist relay job", http.StatusInternalServerError)
		return
	}
	intakeJobsTotal.Inc()
	log.WithFields(map[string]interface{}{
		"txHash":       txHash,
		"sourceDomain": req.SourceDomain,
		"sourceChain":  cfg.SourceDomainName(req.SourceDomain),
	}).Info("Relay job accepted")
	httputil.WriteJsonWithStatus(w, &SubmitRelayResponse{
		TxHash:  txHash,
		Status:  types.StatusPending.String(),
		Message: "Relay job accepted",
	}, http.StatusCreated)
}

// GetRelayJob returns the client-facing projection of a tracked job.
func (s *Service) GetRelayJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.GetRelayJob")
	defer span.End()

	txHash := strings.ToLower(mux.Vars(r)["txHash"])
	job, err := s.cfg.Database.RelayJob(ctx, txHash)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeErrorJson(w, "Job not found", http.StatusNotFound)
			return
		}
		writeErrorJson(w, "could not query job store", http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, &RelayJobResponse{
		TxHash:       job.TxHash,
		SourceDomain: job.SourceDomain,
		Status:       job.Status.String(),
		Outcome:      job.Outcome.String(),
		Error:        job.ErrorMessage,
		DestTxHash:   job.DestTxHash,
		CreatedAt:    job.CreatedAt,
		AttestedAt:   job.AttestedAt,
		SubmittedAt:  job.SubmittedAt,
		ConfirmedAt:  job.ConfirmedAt,
	})
}

// GetHealth reports per-status counts, derived live from the store so an
// unreachable database surfaces as unhealthy.
func (s *Service) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "rpc.GetHealth")
	defer span.End()

	counts, err := s.cfg.Database.CountRelayJobsByStatus(ctx)
	if err != nil {
		log.WithError(err).Error("Health check could not reach the job store")
		httputil.WriteJsonWithStatus(w, &HealthResponse{Status: "unhealthy"}, http.StatusInternalServerError)
		return
	}
	jobs := make(map[string]uint64, len(counts))
	for st, n := range counts {
		jobs[st.String()] = n
	}
	httputil.WriteJson(w, &HealthResponse{Status: "healthy", Jobs: jobs})
}
