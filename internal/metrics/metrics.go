// Package metrics exposes Prometheus instrumentation for store operations
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rstore_operations_total",
			Help: "Total number of store operations by type",
		}, []string{"operation", "resource_type"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rstore_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"operation", "resource_type"}),

		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rstore_operation_errors_total",
			Help: "Total number of failed store operations by error class",
		}, []string{"operation", "resource_type", "class"}),

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rstore_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordOperation records one completed store operation.
func (m *Metrics) RecordOperation(operation, resourceType string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, resourceType).Inc()
	m.duration.WithLabelValues(operation, resourceType).Observe(d.Seconds())
}

// RecordError records a failed store operation.
func (m *Metrics) RecordError(operation, resourceType, class string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation, resourceType, class).Inc()
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
