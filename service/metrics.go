package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ledgerMetrics is nil when the service runs without a registry; every method
// tolerates a nil receiver.
type ledgerMetrics struct {
	votesCast    prometheus.Counter
	rejections   *prometheus.CounterVec
	castDuration prometheus.Histogram
	ledgerSize   prometheus.Gauge
}

func newLedgerMetrics(registry prometheus.Registerer) *ledgerMetrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &ledgerMetrics{
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "voting_votes_cast_total",
			Help: "total votes accepted into the ledger",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_vote_rejections_total",
			Help: "total rejected vote casts, by reason",
		}, []string{"reason"}),
		castDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voting_cast_duration_seconds",
			Help:    "time spent validating and recording a vote",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		ledgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voting_ledger_size",
			Help: "number of votes in the ledger",
		}),
	}
}

func (m *ledgerMetrics) recordCast(duration time.Duration, size int) {
	if m == nil {
		return
	}
	m.votesCast.Inc()
	m.castDuration.Observe(duration.Seconds())
	m.ledgerSize.Set(float64(size))
}

func (m *ledgerMetrics) recordRejection(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
	m.castDuration.Observe(duration.Seconds())
}
