// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPInFlight        prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SessionsIssued      *prometheus.CounterVec
	PaymentEvents       *prometheus.CounterVec
	RateLimited         prometheus.Counter
}

// New creates collectors on a fresh registry together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		SessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessgate_sessions_issued_total",
			Help: "Unified session responses built, by whether payment was required.",
		}, []string{"payment_required"}),
		PaymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessgate_payment_events_total",
			Help: "Verified payment events, by type and outcome.",
		}, []string{"type", "outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessgate_rate_limited_total",
			Help: "Requests rejected by the credential endpoint limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPInFlight,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsIssued,
		m.PaymentEvents,
		m.RateLimited,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
