package attestation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_poll_cycles_total",
		Help: "Total number of attestation poll cycles run.",
	})
	authorityResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_authority_responses_total",
		Help: "Attestation authority responses by result class.",
	}, []string{"result"})
	authorityBackoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_authority_backoffs_total",
		Help: "Global backoffs triggered by authority throttling.",
	})
	attestedJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_attested_jobs_total",
		Help: "Jobs that received a complete, valid attestation.",
	})
	attestationTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_attestation_timeouts_total",
		Help: "Jobs failed because their attestation never arrived in time.",
	})
	validationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_message_validation_failures_total",
		Help: "Attested payloads rejected by the message validator.",
	})
)
