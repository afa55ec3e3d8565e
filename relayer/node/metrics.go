package node

import (
	"context"
	"time"

	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const jobGaugeRefreshInterval = 30 * time.Second

var jobsByStatusGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "relay_jobs",
	Help: "Tracked relay jobs by lifecycle status.",
}, []string{"status"})

func refreshJobGauges(ctx context.Context, d db.ReadOnlyDatabase) {
	counts, err := d.CountRelayJobsByStatus(ctx)
	if err != nil {
		log.WithError(err).Debug("Could not refresh job status gauges")
		return
	}
	for st, n := range counts {
		jobsByStatusGauge.WithLabelValues(st.String()).Set(float64(n))
	}
}
