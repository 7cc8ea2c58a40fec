// Package metrics exposes prometheus collectors for order operations.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fruitorders/internal/models"
)

const resultOK = "ok"

// OrderMetrics counts pipeline operations by outcome. A nil *OrderMetrics
// records nothing.
type OrderMetrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	auditFailures prometheus.Counter
}

func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fruitorders_operations_total",
			Help: "Total number of order operations by result (ok or error kind)",
		}, []string{"op", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fruitorders_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"op"}),
		auditFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fruitorders_audit_failures_total",
			Help: "Updates applied whose audit entry could not be recorded",
		}),
	}
}

// Observe records one finished operation.
func (m *OrderMetrics) Observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.operations.WithLabelValues(op, Result(err)).Inc()
	if errors.Is(err, models.ErrAuditNotRecorded) {
		m.auditFailures.Inc()
	}
}

// Result is the label value for err: "ok" or the error kind name.
func Result(err error) string {
	if err == nil {
		return resultOK
	}
	if errors.Is(err, models.ErrAuditNotRecorded) {
		return "AuditNotRecorded"
	}
	kind, ok := models.KindOf(err)
	if !ok {
		return models.KindUnknownDataAccess.String()
	}
	return kind.String()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
