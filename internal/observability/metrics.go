package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "hearth"

// Metrics holds the gateway's Prometheus instruments. A single instance is
// created at startup and shared via DI; persistence is left to the scraper.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	degradationsTotal  *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	chunksWritten      *prometheus.CounterVec
}

// NewMetrics creates and registers all gateway metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of completion requests by provider and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of completion requests in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts by operation",
			},
			[]string{"operation"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions by operation and new state",
			},
			[]string{"operation", "state"},
		),
		degradationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "degradations_total",
				Help:      "Requests answered from the fallback payload cache",
			},
			[]string{"provider"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sse_active_connections",
				Help:      "Currently active streaming connections",
			},
		),
		chunksWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sse_chunks_written_total",
				Help:      "Stream chunks written to clients by chunk type",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.retriesTotal,
		m.breakerTransitions,
		m.degradationsTotal,
		m.activeConnections,
		m.chunksWritten,
	)

	return m
}

// Handler returns the HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished completion request.
func (m *Metrics) ObserveRequest(provider, model, outcome string, seconds float64) {
	m.requestsTotal.WithLabelValues(provider, model, outcome).Inc()
	m.requestDuration.WithLabelValues(provider, model).Observe(seconds)
}

// ObserveRetry records one retry attempt for a named operation.
func (m *Metrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// ObserveBreakerTransition records a circuit breaker state change.
func (m *Metrics) ObserveBreakerTransition(operation, state string) {
	m.breakerTransitions.WithLabelValues(operation, state).Inc()
}

// ObserveDegradation records a request served from the fallback cache.
func (m *Metrics) ObserveDegradation(provider string) {
	m.degradationsTotal.WithLabelValues(provider).Inc()
}

// SetActiveConnections updates the live streaming connection gauge.
func (m *Metrics) SetActiveConnections(n int) {
	m.activeConnections.Set(float64(n))
}

// ObserveChunk records one stream chunk written to a client.
func (m *Metrics) ObserveChunk(chunkType string) {
	m.chunksWritten.WithLabelValues(chunkType).Inc()
}
