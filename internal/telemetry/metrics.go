package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for session lifecycle operations.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors for the session lifecycle.
type Metrics struct {
	operations    *prometheus.CounterVec
	reuseDetected prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. reg may be nil, in which case
// the collectors work but are not exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_lifecycle_operations_total",
			Help: "Session lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_refresh_token_reuse_total",
			Help: "Presentations of refresh tokens that were already rotated.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.reuseDetected)
	}
	return m
}

// Observe counts one operation with the given outcome. Safe on a nil receiver.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ReuseDetected counts one replay of a rotated refresh token. Safe on a nil receiver.
func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}
