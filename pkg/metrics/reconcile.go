package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics records outcomes of reconciliation engine operations.
type ReconcileMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconciliation metrics on the
// provided registerer. A nil registerer yields a no-op recorder, which
// keeps tests and tooling free of registration side effects.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_op_duration_seconds",
		Help:    "Duration of reconciliation operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_op_success",
		Help: "Successful reconciliation operations.",
	}, []string{"op"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_op_failure",
		Help: "Failed reconciliation operations.",
	}, []string{"op"})
	reg.MustRegister(duration, success, failure)
	return &ReconcileMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// Observe records one operation outcome.
func (m *ReconcileMetrics) Observe(op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	label := normalizeLabel(op)
	if m.duration != nil {
		m.duration.WithLabelValues(label).Observe(took.Seconds())
	}
	if err != nil {
		if m.failure != nil {
			m.failure.WithLabelValues(label).Inc()
		}
		return
	}
	if m.success != nil {
		m.success.WithLabelValues(label).Inc()
	}
}

func normalizeLabel(op string) string {
	label := strings.TrimSpace(strings.ToLower(op))
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, " ", "_")
}
