package submitter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_submissions_total",
		Help: "Destination transactions broadcast by the submitter.",
	})
	confirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_confirmations_total",
		Help: "Confirmed relay jobs by settlement outcome.",
	}, []string{"outcome"})
	submissionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_submission_retries_total",
		Help: "Transient submission failures that requeued a job.",
	})
	terminalFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_submission_terminal_failures_total",
		Help: "Jobs failed on a terminal contract rejection.",
	})
	recoveredNonceTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_recovered_nonce_events_total",
		Help: "RecoveredFromConsumedNonce events observed in confirmations.",
	})
	submissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_submission_latency_seconds",
		Help:    "Time from broadcast to confirmed receipt.",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 180},
	})
)
