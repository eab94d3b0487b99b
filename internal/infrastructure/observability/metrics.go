package observability

import (
	"time"

	"github.com/elektrahub/checkout/internal/domain/payment"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Session metrics
	SessionsStarted  *prometheus.CounterVec
	SessionOutcomes  *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	PollRequests     *prometheus.CounterVec
	SessionEventsOut *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequests        *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of payment sessions started, by kind (new or retry)",
			},
			[]string{"kind"},
		),
		SessionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_outcomes_total",
				Help:      "Total number of payment sessions by terminal status",
			},
			[]string{"status"},
		),
		SessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Time from session start to terminal status",
				Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 150},
			},
			[]string{"status"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of sessions waiting for a payment outcome",
			},
		),
		PollRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_requests_total",
				Help:      "Total number of payment status checks by result",
			},
			[]string{"result"},
		),
		SessionEventsOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_events_published_total",
				Help:      "Total number of session events written to the event stream",
			},
			[]string{"status"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of storefront backend requests",
			},
			[]string{"operation", "outcome"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Storefront backend request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"stream"},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.SessionsStarted,
		m.SessionOutcomes,
		m.SessionDuration,
		m.ActiveSessions,
		m.PollRequests,
		m.SessionEventsOut,
		m.UpstreamRequests,
		m.UpstreamRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}

// SessionStarted counts a new session and marks it active.
func (m *Metrics) SessionStarted(isRetry bool) {
	kind := "new"
	if isRetry {
		kind = "retry"
	}
	m.SessionsStarted.WithLabelValues(kind).Inc()
	m.ActiveSessions.Inc()
}

// SessionFinished records the outcome of a session.
func (m *Metrics) SessionFinished(status payment.Status, elapsed time.Duration) {
	m.SessionOutcomes.WithLabelValues(string(status)).Inc()
	m.SessionDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
	m.ActiveSessions.Dec()
}

// PollCompleted counts one status check.
func (m *Metrics) PollCompleted(result string) {
	m.PollRequests.WithLabelValues(result).Inc()
}

// EventPublished counts a session event written to the event stream.
func (m *Metrics) EventPublished(status payment.Status) {
	m.SessionEventsOut.WithLabelValues(string(status)).Inc()
}

// MessageProcessed records one stream message handled by the worker.
// result is one of "recorded", "dead_lettered" or "error".
func (m *Metrics) MessageProcessed(stream, result string, elapsed time.Duration) {
	m.WorkerMessagesProcessed.WithLabelValues(stream, result).Inc()
	m.WorkerProcessingDuration.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// ObserveUpstream records one storefront backend call.
func (m *Metrics) ObserveUpstream(operation, outcome string, elapsed time.Duration) {
	m.UpstreamRequests.WithLabelValues(operation, outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetBreakerState publishes a circuit breaker state (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// BreakerRequest counts a call that went through, or was rejected by, a circuit breaker.
func (m *Metrics) BreakerRequest(name, result string) {
	m.CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}
