package server

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	subscribers prometheus.Gauge
	events      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simpleswap",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Active state stream subscriptions.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simpleswap",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Stream events queued to subscribers, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.subscribers, m.events)
	return m
}
