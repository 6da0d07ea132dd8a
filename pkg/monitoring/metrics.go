package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection.
// A nil *MetricsCollector records nothing.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	remoteCallsTotal        *prometheus.CounterVec
	remoteCallDuration      *prometheus.HistogramVec
	pollTicksTotal          *prometheus.CounterVec
	activePolls             prometheus.Gauge
	consultationTransitions *prometheus.CounterVec
	noticesTotal            *prometheus.CounterVec
	meetingsReprovisioned   prometheus.Counter
	systemErrors            *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector with its own registry
func NewMetricsCollector(serviceName string) *MetricsCollector {
	labels := prometheus.Labels{"service": serviceName}

	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "endpoint"},
		),
		remoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "remote_calls_total",
				Help:        "Total number of upstream API calls",
				ConstLabels: labels,
			},
			[]string{"upstream", "operation", "status"},
		),
		remoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "remote_call_duration_seconds",
				Help:        "Duration of upstream API calls in seconds",
				Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
				ConstLabels: labels,
			},
			[]string{"upstream", "operation"},
		),
		pollTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "message_poll_ticks_total",
				Help:        "Total number of message sync ticks",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		activePolls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "message_polls_active",
				Help:        "Number of sessions with an active message poll",
				ConstLabels: labels,
			},
		),
		consultationTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "consultation_transitions_total",
				Help:        "Total number of consultation request transitions",
				ConstLabels: labels,
			},
			[]string{"action", "result"},
		),
		noticesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "system_notices_total",
				Help:        "Total number of system notices posted into threads",
				ConstLabels: labels,
			},
			[]string{"kind", "result"},
		),
		meetingsReprovisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "meetings_reprovisioned_total",
				Help:        "Meetings replaced after failed validation",
				ConstLabels: labels,
			},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "system_errors_total",
				Help:        "Total number of system errors",
				ConstLabels: labels,
			},
			[]string{"error_type", "component"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.remoteCallsTotal,
		m.remoteCallDuration,
		m.pollTicksTotal,
		m.activePolls,
		m.consultationTransitions,
		m.noticesTotal,
		m.meetingsReprovisioned,
		m.systemErrors,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRemoteCall records an upstream API call
func (m *MetricsCollector) RecordRemoteCall(upstream, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.remoteCallsTotal.WithLabelValues(upstream, operation, status).Inc()
	m.remoteCallDuration.WithLabelValues(upstream, operation).Observe(duration.Seconds())
}

// RecordPollTick records the outcome of one message sync tick
func (m *MetricsCollector) RecordPollTick(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.pollTicksTotal.WithLabelValues(result).Inc()
}

// PollStarted increments the active poll gauge
func (m *MetricsCollector) PollStarted() {
	if m == nil {
		return
	}
	m.activePolls.Inc()
}

// PollStopped decrements the active poll gauge
func (m *MetricsCollector) PollStopped() {
	if m == nil {
		return
	}
	m.activePolls.Dec()
}

// RecordTransition records a consultation confirm/cancel/create attempt
func (m *MetricsCollector) RecordTransition(action, result string) {
	if m == nil {
		return
	}
	m.consultationTransitions.WithLabelValues(action, result).Inc()
}

// RecordNotice records a system notice dispatch
func (m *MetricsCollector) RecordNotice(kind string, success bool) {
	if m == nil {
		return
	}
	m.noticesTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

// RecordReprovision records a superseded meeting
func (m *MetricsCollector) RecordReprovision() {
	if m == nil {
		return
	}
	m.meetingsReprovisioned.Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	if m == nil {
		return
	}
	m.systemErrors.WithLabelValues(errorType, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
