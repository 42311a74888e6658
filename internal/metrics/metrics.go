// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	HandshakesTotal   *prometheus.CounterVec
	SessionGeneration prometheus.Gauge
	AuthRetriesTotal  prometheus.Counter
	BackendOutcomes   *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anaf_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anaf_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anaf_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anaf_gateway_upstream_request_duration_seconds",
			Help:    "BANCIWS call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"endpoint"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anaf_gateway_upstream_responses_total",
			Help: "Total BANCIWS responses by endpoint and status code.",
		}, []string{"endpoint", "status_code"}),

		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anaf_gateway_session_handshakes_total",
			Help: "Total F5 session handshake attempts by result.",
		}, []string{"result"}),

		SessionGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anaf_gateway_session_generation",
			Help: "Generation counter of the current F5 session.",
		}),

		AuthRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anaf_gateway_auth_retries_total",
			Help: "Requests retried after an authentication failure.",
		}),

		BackendOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anaf_gateway_backend_outcomes_total",
			Help: "Classified backend call outcomes by endpoint.",
		}, []string{"endpoint", "outcome"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.HandshakesTotal,
		m.SessionGeneration,
		m.AuthRetriesTotal,
		m.BackendOutcomes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPaths lists the allowed path label values (bounded cardinality).
var knownPaths = []string{
	"/lista-mesaje", "/stare-mesaj", "/descarcare-mesaj", "/upload-mesaj",
	"/healthz", "/gateway/status", "/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, p := range knownPaths {
		if path == p || strings.HasPrefix(path, p+"/") || strings.HasPrefix(path, p+"?") {
			return p
		}
	}
	return "other"
}

// knownEndpoints lists the BANCIWS operations the gateway targets.
var knownEndpoints = map[string]bool{
	"listaMesaje": true, "stareMesaj": true, "descarcare": true, "uploadMesaj": true,
}

// NormalizeEndpoint returns a bounded upstream endpoint label for Prometheus metrics.
func NormalizeEndpoint(endpoint string) string {
	if knownEndpoints[endpoint] {
		return endpoint
	}
	return "other"
}
