package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for the differ.
type Metrics struct {
	diffDuration prometheus.Histogram
	diffsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the differ collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simpleswap",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time taken to diff two consecutive states.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		diffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simpleswap",
			Subsystem: "differ",
			Name:      "diffs_total",
			Help:      "Diffs computed, by outcome (changed, empty, error).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.diffDuration, m.diffsTotal)
	return m
}
