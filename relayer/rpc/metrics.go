package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intakeJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_intake_jobs_total",
		Help: "New relay jobs admitted through the intake API.",
	})
	duplicateIntakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_intake_duplicates_total",
		Help: "Intake requests replaying an already tracked transaction hash.",
	})
	rejectedIntakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_intake_rejected_total",
		Help: "Intake requests rejected by validation.",
	})
	throttledRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_api_throttled_requests_total",
		Help: "API requests rejected by the per client throttle.",
	})
)
