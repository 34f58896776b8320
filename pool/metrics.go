package pool

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one pool.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	reserves    *prometheus.GaugeVec
	shareSupply prometheus.Gauge
	swapVolume  *prometheus.CounterVec
}

// NewMetrics creates the pool collectors and registers them. The pool label
// lets several pools share one registry.
func NewMetrics(reg prometheus.Registerer, pool string) *Metrics {
	constLabels := prometheus.Labels{"pool": pool}
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "simpleswap",
				Subsystem:   "pool",
				Name:        "operations_total",
				Help:        "Pool entry point calls by operation and outcome.",
				ConstLabels: constLabels,
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "simpleswap",
				Subsystem:   "pool",
				Name:        "operation_duration_seconds",
				Help:        "Time spent inside a pool entry point, including the host transaction.",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"operation"},
		),
		reserves: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "simpleswap",
				Subsystem:   "pool",
				Name:        "reserve",
				Help:        "Cached reserve of each pooled asset, in base units.",
				ConstLabels: constLabels,
			},
			[]string{"asset"},
		),
		shareSupply: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "simpleswap",
				Subsystem:   "pool",
				Name:        "share_supply",
				Help:        "Outstanding pool shares.",
				ConstLabels: constLabels,
			},
		),
		swapVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "simpleswap",
				Subsystem:   "pool",
				Name:        "swap_volume_total",
				Help:        "Swap input volume by input asset, in base units.",
				ConstLabels: constLabels,
			},
			[]string{"token_in"},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.reserves, m.shareSupply, m.swapVolume)
	return m
}

func (m *Metrics) observeOperation(operation string, err error) {
	m.operations.WithLabelValues(operation, Reason(err)).Inc()
}

func (m *Metrics) observeReserves(asset0, asset1 string, reserve0, reserve1, supply *uint256.Int) {
	m.reserves.WithLabelValues(asset0).Set(toFloat(reserve0))
	m.reserves.WithLabelValues(asset1).Set(toFloat(reserve1))
	m.shareSupply.Set(toFloat(supply))
}

func (m *Metrics) observeSwap(tokenIn string, amountIn *uint256.Int) {
	m.swapVolume.WithLabelValues(tokenIn).Add(toFloat(amountIn))
}

// toFloat converts a base-unit amount for reporting; precision loss above 2^53 is acceptable for metrics.
func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
