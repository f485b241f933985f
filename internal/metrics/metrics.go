// Package metrics exposes inventory counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Inventory holds the service metrics. A nil *Inventory is valid and records nothing.
type Inventory struct {
	registry *prometheus.Registry

	Adjustments        *prometheus.CounterVec
	Allocations        *prometheus.CounterVec
	ConcurrencyRetries *prometheus.CounterVec
	ClaimErrors        *prometheus.CounterVec
	ForecastDuration   prometheus.Histogram
	ForecastCache      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

func New(namespace string) *Inventory {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Inventory{
		registry: registry,
		Adjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adjustments_total",
				Help:      "Manual on-hand adjustments by reason code and result",
			},
			[]string{"reason", "result"},
		),
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_operations_total",
				Help:      "Allocate, release and consume operations by result",
			},
			[]string{"operation", "result"},
		),
		ConcurrencyRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concurrency_retries_total",
				Help:      "Ledger transactions retried after a version conflict",
			},
			[]string{"operation"},
		),
		ClaimErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_claim_errors_total",
				Help:      "Duplicate-allocation claim store failures by step",
			},
			[]string{"step"},
		),
		ForecastDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_duration_seconds",
				Help:      "Time to build a depletion forecast report",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		ForecastCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_cache_total",
				Help:      "Forecast snapshot cache lookups by result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(m.Adjustments, m.Allocations, m.ConcurrencyRetries, m.ClaimErrors, m.ForecastDuration, m.ForecastCache, m.HTTPRequests)
	return m
}

func (m *Inventory) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Inventory) ObserveAdjustment(reason, result string) {
	if m == nil {
		return
	}
	m.Adjustments.WithLabelValues(reason, result).Inc()
}

func (m *Inventory) ObserveAllocation(operation, result string) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(operation, result).Inc()
}

func (m *Inventory) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.ConcurrencyRetries.WithLabelValues(operation).Inc()
}

func (m *Inventory) ObserveClaimError(step string) {
	if m == nil {
		return
	}
	m.ClaimErrors.WithLabelValues(step).Inc()
}

func (m *Inventory) ObserveForecast(started time.Time) {
	if m == nil {
		return
	}
	m.ForecastDuration.Observe(time.Since(started).Seconds())
}

func (m *Inventory) ObserveForecastCache(result string) {
	if m == nil {
		return
	}
	m.ForecastCache.WithLabelValues(result).Inc()
}

func (m *Inventory) ObserveHTTP(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
