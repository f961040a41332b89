package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	PublishPublished    = "published"
	PublishRetry        = "retry"
	PublishDeadLettered = "dead_lettered"
	PublishDeferred     = "deferred"
)

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
	lag      *prometheus.HistogramVec
}

// NewOutboxMetrics registers the publisher metrics on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_lag_seconds",
		Help:    "Time between an outbox row being written and being published.",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"event_type"})
	reg.MustRegister(outcomes, lag)
	return &OutboxMetrics{outcomes: outcomes, lag: lag}
}

// Observe counts one handled row. Lag is only recorded for published rows.
func (m *OutboxMetrics) Observe(eventType, outcome string, lag time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	m.outcomes.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
	if outcome == PublishPublished && lag > 0 {
		m.lag.WithLabelValues(eventType).Observe(lag.Seconds())
	}
}
