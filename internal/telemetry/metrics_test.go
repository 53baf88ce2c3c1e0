package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Observe("refresh", OutcomeSuccess)
	m.Observe("refresh", OutcomeSuccess)
	m.Observe("refresh", OutcomeRejected)
	m.ReuseDetected()

	if got := testutil.ToFloat64(m.operations.WithLabelValues("refresh", OutcomeSuccess)); got != 2 {
		t.Errorf("refresh/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("refresh", OutcomeRejected)); got != 1 {
		t.Errorf("refresh/rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reuseDetected); got != 1 {
		t.Errorf("reuse = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg, "session_lifecycle_operations_total"); err != nil || n != 2 {
		t.Errorf("GatherAndCount = %d, %v; want 2 series", n, err)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Observe("login", OutcomeSuccess)
	m.ReuseDetected()
}
