// Package metrics provides Prometheus metrics for the dev proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// sessionBuckets cover long-lived socket tunnels rather than request latencies.
var sessionBuckets = []float64{1, 5, 15, 60, 300, 900, 3600, 14400}

// Metrics holds all Prometheus metric collectors for the dev proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	WSSessionsActive  prometheus.Gauge
	WSSessionsTotal   prometheus.Counter
	WSSessionDuration prometheus.Histogram

	pathPrefixes []string
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. pathPrefixes bounds the path_prefix label: requests outside the
// given set are labeled as frontend traffic.
func New(pathPrefixes []string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry:     reg,
		pathPrefixes: pathPrefixes,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_dev_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_dev_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_dev_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_dev_proxy_upstream_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_dev_proxy_upstream_responses_total",
			Help: "Total backend responses by method and status code.",
		}, []string{"method", "status_code"}),

		WSSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_dev_proxy_websocket_sessions_active",
			Help: "WebSocket tunnels currently open.",
		}),

		WSSessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_dev_proxy_websocket_sessions_total",
			Help: "Total WebSocket tunnels opened since start.",
		}),

		WSSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_dev_proxy_websocket_session_duration_seconds",
			Help:    "Lifetime of closed WebSocket tunnels in seconds.",
			Buckets: sessionBuckets,
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.WSSessionsActive,
		m.WSSessionsTotal,
		m.WSSessionDuration,
	)

	return m
}

// DefaultPathPrefixes returns the path label set for the default route layout.
func DefaultPathPrefixes() []string {
	return []string{"/api", "/ws", "/healthz", "/devserver/status", "/metrics"}
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

// NormalizePath returns a bounded path label for Prometheus metrics. Paths
// outside the known prefixes are labeled "frontend", the catch-all route.
func (m *Metrics) NormalizePath(path string) string {
	for _, prefix := range m.pathPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "frontend"
}
