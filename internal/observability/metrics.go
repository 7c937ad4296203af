package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sweep outcomes recorded per timer.
const (
	OutcomeOK       = "ok"
	OutcomeBreach   = "breach"
	OutcomeWarning  = "warning"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors of the service. Every method is
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	breaches         prometheus.Counter
	warnings         prometheus.Counter
	dispatchFailures *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepTimers      *prometheus.CounterVec
}

// NewMetrics builds the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by route, method and error code",
		}, []string{"path", "method", "code"}),
		breaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "SLA breaches detected",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_warnings_total",
			Help: "SLA warnings raised",
		}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_dispatch_failures_total",
			Help: "Notifications that could not be handed to a channel",
		}, []string{"kind"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "Duration of a full SLA sweep",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		sweepTimers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_sweep_timers_total",
			Help: "Timers processed by the sweep by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.errors,
		m.breaches,
		m.warnings,
		m.dispatchFailures,
		m.sweepDuration,
		m.sweepTimers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordBreach counts a newly detected breach.
func (m *Metrics) RecordBreach() {
	if m == nil {
		return
	}
	m.breaches.Inc()
}

// RecordWarning counts a newly raised warning.
func (m *Metrics) RecordWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

// RecordDispatchFailure counts a notification that failed to dispatch.
func (m *Metrics) RecordDispatchFailure(kind string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(kind).Inc()
}

// RecordSweep observes a finished sweep.
func (m *Metrics) RecordSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordSweepTimer counts one timer processed by the sweep.
func (m *Metrics) RecordSweepTimer(outcome string) {
	if m == nil {
		return
	}
	m.sweepTimers.WithLabelValues(outcome).Inc()
}
