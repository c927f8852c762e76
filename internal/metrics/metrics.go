// Package metrics exposes Prometheus instrumentation for ledger operations.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mmynk/settleup/internal/models"
)

const namespace = "settleup"

// Metrics holds the ledger collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New registers the ledger collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger coordinator operations by outcome.",
		}, []string{"operation", "outcome"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_conflicts_total",
			Help:      "Transactions that lost an optimistic concurrency race.",
		}, []string{"operation"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger coordinator operation latency, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// ObserveOperation records the outcome and latency of one operation.
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ConflictRetried counts one lost optimistic race.
func (m *Metrics) ConflictRetried(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// Outcome maps an operation error to a bounded label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if kind := models.Kind(err); kind != "" {
		return kind
	}
	return "error"
}

// Conflicts returns the conflict counter for operation. A nil *Metrics
// returns a detached counter that stays at zero.
func (m *Metrics) Conflicts(operation string) prometheus.Counter {
	if m == nil {
		return detached("ledger_conflicts_total")
	}
	return m.conflicts.WithLabelValues(operation)
}

// Operations returns the outcome counter for operation. A nil *Metrics
// returns a detached counter that stays at zero.
func (m *Metrics) Operations(operation, outcome string) prometheus.Counter {
	if m == nil {
		return detached("ledger_operations_total")
	}
	return m.operations.WithLabelValues(operation, outcome)
}

func detached(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: "Unregistered."})
}
