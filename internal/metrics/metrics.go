// Package metrics exposes prometheus collectors for the matching path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ome"

// Metrics is nil safe: a nil *Metrics records nothing.
type Metrics struct {
	Attempts   *prometheus.CounterVec
	Conflicts  *prometheus.CounterVec
	Outcomes   *prometheus.CounterVec
	Fills      *prometheus.CounterVec
	MatchTimes *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_attempts_total",
			Help:      "Matching attempts started, including retries.",
		}, []string{"market"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_conflicts_total",
			Help:      "Attempts rolled back on a serialization conflict.",
		}, []string{"market"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order submissions by final result kind.",
		}, []string{"market", "result"}),
		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Committed fills.",
		}, []string{"market"}),
		MatchTimes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Wall time of a submission across all attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"market"}),
	}
}

func (m *Metrics) Attempt(market string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(market).Inc()
}

func (m *Metrics) Conflict(market string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(market).Inc()
}

func (m *Metrics) Done(market, result string, fills int, took time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(market, result).Inc()
	if fills > 0 {
		m.Fills.WithLabelValues(market).Add(float64(fills))
	}
	m.MatchTimes.WithLabelValues(market).Observe(took.Seconds())
}
