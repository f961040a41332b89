package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// snapshot indexes a gathered registry by family name.
type snapshot map[string]*dto.MetricFamily

func gather(t *testing.T, reg *prometheus.Registry) snapshot {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(snapshot, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

// series returns the first series of family whose labels include all of want.
func (s snapshot) series(t *testing.T, family string, want map[string]string) *dto.Metric {
	t.Helper()
	mf, ok := s[family]
	if !ok {
		t.Fatalf("family %s not gathered", family)
	}
	for _, m := range mf.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		matched := true
		for k, v := range want {
			if labels[k] != v {
				matched = false
				break
			}
		}
		if matched {
			return m
		}
	}
	t.Fatalf("series not found: %s %v", family, want)
	return nil
}

// expectSum compares a histogram sum of float seconds within rounding error.
func expectSum(t *testing.T, want, got float64) {
	t.Helper()
	if math.Abs(want-got) > 1e-9 {
		t.Fatalf("expected sum %v, got %v", want, got)
	}
}
