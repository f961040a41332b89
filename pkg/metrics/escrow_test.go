package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEscrowMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEscrowMetrics(reg)
	m.ObserveLedgerCall("stripe", "capture", "ok", 120*time.Millisecond)
	m.ObserveLedgerCall("stripe", "capture", "ok", 80*time.Millisecond)
	m.ObserveLedgerCall("square", "refund", "error", time.Second)
	m.IncTransition("release", "completed")
	m.SetStaleIntents(3)

	got := gather(t, reg)
	if value := got.series(t, "ledger_calls_total", map[string]string{"provider": "stripe", "operation": "capture", "outcome": "ok"}).GetCounter().GetValue(); value != 2 {
		t.Fatalf("expected 2 stripe captures, got %v", value)
	}
	if value := got.series(t, "ledger_calls_total", map[string]string{"provider": "square", "outcome": "error"}).GetCounter().GetValue(); value != 1 {
		t.Fatalf("expected 1 square error, got %v", value)
	}
	expectSum(t, 0.2, got.series(t, "ledger_call_duration_seconds", map[string]string{"provider": "stripe"}).GetHistogram().GetSampleSum())
	if value := got.series(t, "payout_transitions_total", map[string]string{"intent": "release", "outcome": "completed"}).GetCounter().GetValue(); value != 1 {
		t.Fatalf("expected 1 completed release, got %v", value)
	}
	if value := got.series(t, "payout_stale_intents", nil).GetGauge().GetValue(); value != 3 {
		t.Fatalf("expected 3 stale intents, got %v", value)
	}

	m.SetStaleIntents(0)
	if value := gather(t, reg).series(t, "payout_stale_intents", nil).GetGauge().GetValue(); value != 0 {
		t.Fatalf("gauge resets to 0, got %v", value)
	}
}

func TestEscrowMetricsNilSafe(t *testing.T) {
	var m *EscrowMetrics
	m.ObserveLedgerCall("stripe", "void", "error", time.Second)
	m.IncTransition("refund", "failed")
	m.SetStaleIntents(1)
	NewEscrowMetrics(nil).IncTransition("refund", "failed")
}
