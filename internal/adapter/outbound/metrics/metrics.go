// Package metrics exposes Prometheus instrumentation for the guidance
// control plane. Injectable and nil-safe: every recording method is a
// no-op on a nil *Metrics so components can be wired without a registry in
// tests or minimal deployments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the control plane records.
type Metrics struct {
	GateDecisionsTotal   *prometheus.CounterVec
	RetrievalDuration    prometheus.Histogram
	LedgerViolationsRate prometheus.Gauge
	OptimizerCycles      *prometheus.CounterVec
	PromotionWins        prometheus.Gauge
}

// New creates and registers every instrument against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		GateDecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guidance",
				Name:      "gate_decisions_total",
				Help:      "Total gate decisions by gate name and severity.",
			},
			[]string{"gate", "decision"},
		),
		RetrievalDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guidance",
				Name:      "retrieval_duration_seconds",
				Help:      "Time to resolve a retrieval request.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		LedgerViolationsRate: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "guidance",
				Name:      "ledger_violation_rate_per_10_tasks",
				Help:      "Most recently computed violation rate per 10 tasks.",
			},
		),
		OptimizerCycles: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guidance",
				Name:      "optimizer_cycles_total",
				Help:      "Total optimizer cycle outcomes by decision.",
			},
			[]string{"decision"},
		),
		PromotionWins: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "guidance",
				Name:      "optimizer_promotion_wins",
				Help:      "Win count of the most recently evaluated promotion candidate.",
			},
		),
	}
}

// RecordGateDecision increments the gate-decision counter. No-op on nil.
func (m *Metrics) RecordGateDecision(gateName, decision string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(gateName, decision).Inc()
}

// ObserveRetrievalDuration records a retrieval latency sample. No-op on nil.
func (m *Metrics) ObserveRetrievalDuration(seconds float64) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(seconds)
}

// SetViolationRate publishes the ledger's latest computed violation rate. No-op on nil.
func (m *Metrics) SetViolationRate(rate float64) {
	if m == nil {
		return
	}
	m.LedgerViolationsRate.Set(rate)
}

// RecordOptimizerCycle increments the optimizer cycle-outcome counter. No-op on nil.
func (m *Metrics) RecordOptimizerCycle(decision string) {
	if m == nil {
		return
	}
	m.OptimizerCycles.WithLabelValues(decision).Inc()
}

// SetPromotionWins publishes the current win count for the active promotion candidate. No-op on nil.
func (m *Metrics) SetPromotionWins(wins float64) {
	if m == nil {
		return
	}
	m.PromotionWins.Set(wins)
}
