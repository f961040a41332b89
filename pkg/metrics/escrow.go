package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks ledger calls and payout transitions.
type EscrowMetrics struct {
	ledgerDuration *prometheus.HistogramVec
	ledgerCalls    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	staleIntents   prometheus.Gauge
}

// NewEscrowMetrics registers the escrow metrics on the provided registerer.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	ledgerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_call_duration_seconds",
		Help:    "Duration of payment processor calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	ledgerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_calls_total",
		Help: "Payment processor calls by outcome.",
	}, []string{"provider", "operation", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transitions_total",
		Help: "Payout transitions attempted by intent and outcome.",
	}, []string{"intent", "outcome"})
	staleIntents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payout_stale_intents",
		Help: "Orders holding a payout intent older than the reconcile threshold.",
	})
	reg.MustRegister(ledgerDuration, ledgerCalls, transitions, staleIntents)
	return &EscrowMetrics{
		ledgerDuration: ledgerDuration,
		ledgerCalls:    ledgerCalls,
		transitions:    transitions,
		staleIntents:   staleIntents,
	}
}

// ObserveLedgerCall records one processor round-trip.
func (m *EscrowMetrics) ObserveLedgerCall(provider, operation, outcome string, duration time.Duration) {
	if m == nil || m.ledgerDuration == nil {
		return
	}
	provider = normalizeLabel(provider)
	operation = normalizeLabel(operation)
	m.ledgerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	m.ledgerCalls.WithLabelValues(provider, operation, normalizeLabel(outcome)).Inc()
}

// IncTransition counts a payout transition attempt.
func (m *EscrowMetrics) IncTransition(intent, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(intent), normalizeLabel(outcome)).Inc()
}

// SetStaleIntents reports how many intents the reconciler found.
func (m *EscrowMetrics) SetStaleIntents(count int) {
	if m == nil || m.staleIntents == nil {
		return
	}
	m.staleIntents.Set(float64(count))
}
