package observability

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records RPC and settlement-cycle activity.
type SettlementMetrics struct {
	requests *prometheus.CounterVec
	cycles   *prometheus.CounterVec
	profit   prometheus.Counter
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Metrics returns the lazily-initialised settlement metrics registry.
func Metrics() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flasharb",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flasharb",
				Subsystem: "settlement",
				Name:      "cycles_total",
				Help:      "Settlement cycles segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			profit: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "flasharb",
				Subsystem: "settlement",
				Name:      "net_profit_units_total",
				Help:      "Cumulative net profit in base units across settled cycles.",
			}),
		}
		prometheus.MustRegister(settlementReg.requests, settlementReg.cycles, settlementReg.profit)
	})
	return settlementReg
}

// ObserveRequest records one RPC request outcome.
func (m *SettlementMetrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

// ObserveCycle records one settlement cycle outcome and, when positive, the
// realized net profit.
func (m *SettlementMetrics) ObserveCycle(asset, outcome string, net *big.Int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(asset, outcome).Inc()
	if net == nil || net.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(net).Float64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return
	}
	m.profit.Add(value)
}
