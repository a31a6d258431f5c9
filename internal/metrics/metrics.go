// Package metrics registers the process's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"abyssrun/internal/saga"
)

// Metrics bundles all collectors on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	SagaDispatched *prometheus.CounterVec
	SagaRetried    *prometheus.CounterVec
	SagaResolved   *prometheus.CounterVec
	SagaFailed     *prometheus.CounterVec

	LimiterWait     prometheus.Histogram
	RequestDuration *prometheus.HistogramVec
	ReportBuilds    prometheus.Counter
	ReportWarnings  prometheus.Counter
}

// New builds and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SagaDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abyssrun_saga_dispatched_total",
			Help: "Work items handed to workers.",
		}, []string{"saga"}),
		SagaRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abyssrun_saga_retried_total",
			Help: "Work items re-queued after a temporary failure.",
		}, []string{"saga"}),
		SagaResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abyssrun_saga_resolved_total",
			Help: "Work items completed successfully.",
		}, []string{"saga"}),
		SagaFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abyssrun_saga_failed_total",
			Help: "Work items that exhausted retries or failed permanently.",
		}, []string{"saga"}),
		LimiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "abyssrun_limiter_wait_seconds",
			Help:    "Time requests spent deferred by the rate limiter.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "abyssrun_http_request_duration_seconds",
			Help:    "Inbound request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
		ReportBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abyssrun_report_builds_total",
			Help: "Dynamics reports generated.",
		}),
		ReportWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abyssrun_report_integrity_warnings_total",
			Help: "Integrity warnings emitted during report builds.",
		}),
	}
	reg.MustRegister(
		m.SagaDispatched, m.SagaRetried, m.SagaResolved, m.SagaFailed,
		m.LimiterWait, m.RequestDuration, m.ReportBuilds, m.ReportWarnings,
	)
	return m
}

// SagaHooks adapts the counters for one named saga to the engine's
// observation points.
func (m *Metrics) SagaHooks(name string) saga.Hooks {
	return saga.Hooks{
		Dispatched: func() { m.SagaDispatched.WithLabelValues(name).Inc() },
		Retried:    func() { m.SagaRetried.WithLabelValues(name).Inc() },
		Resolved:   func() { m.SagaResolved.WithLabelValues(name).Inc() },
		Failed:     func() { m.SagaFailed.WithLabelValues(name).Inc() },
	}
}
