// Package metrics provides Prometheus instrumentation for callguard.
// All collectors are registered via Init and exposed through Handler for
// scraping. Sink adapts the collectors to the circuit breaker's MetricsSink
// interface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m-check1B/callguard/internal/circuitbreaker"
)

var (
	// CircuitCalls counts completed protected calls by circuit, resource,
	// and outcome (success or failure).
	CircuitCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_breaker_calls_total",
			Help: "Completed protected calls by outcome",
		},
		[]string{"circuit", "resource", "outcome"},
	)

	// CircuitRejections counts calls rejected without reaching the
	// protected work.
	CircuitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_breaker_rejections_total",
			Help: "Calls rejected by an open or saturated circuit",
		},
		[]string{"circuit", "resource"},
	)

	// CircuitTransitions counts state transitions by from/to state.
	CircuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"circuit", "resource", "from", "to"},
	)

	// CircuitState reports the current state: 0=closed, 1=half-open, 2=open.
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callguard_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"circuit", "resource"},
	)

	// CircuitCallDuration observes protected call latency in seconds by
	// outcome.
	CircuitCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callguard_breaker_call_duration_seconds",
			Help:    "Protected call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"circuit", "resource", "outcome"},
	)

	// AdminRequests counts admin API requests by endpoint and status code.
	AdminRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_admin_requests_total",
			Help: "Admin API requests processed",
		},
		[]string{"endpoint", "status"},
	)

	// AuthFailures counts admin authentication failures by reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_auth_failures_total",
			Help: "Admin API authentication failures",
		},
		[]string{"reason"},
	)

	// RateLimitHits counts admin API rate limit rejections.
	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callguard_rate_limit_hits_total",
			Help: "Admin API rate limit rejections",
		},
	)
)

// Init registers all collectors with the default Prometheus registry.
// Must be called once at startup.
func Init() {
	prometheus.MustRegister(
		CircuitCalls,
		CircuitRejections,
		CircuitTransitions,
		CircuitState,
		CircuitCallDuration,
		AdminRequests,
		AuthFailures,
		RateLimitHits,
	)
}

// Handler returns an http.Handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Sink routes circuit breaker telemetry to the Prometheus collectors above.
// The breaker emits by metric name; unknown names are dropped rather than
// panicking, so breaker and collector versions can evolve independently.
type Sink struct{}

var _ circuitbreaker.MetricsSink = Sink{}

func (Sink) IncCounter(name string, labels circuitbreaker.Labels) {
	switch name {
	case circuitbreaker.MetricCalls:
		CircuitCalls.With(prometheus.Labels(labels)).Inc()
	case circuitbreaker.MetricRejections:
		CircuitRejections.With(prometheus.Labels(labels)).Inc()
	case circuitbreaker.MetricTransitions:
		CircuitTransitions.With(prometheus.Labels(labels)).Inc()
	}
}

func (Sink) SetGauge(name string, value float64, labels circuitbreaker.Labels) {
	if name == circuitbreaker.MetricState {
		CircuitState.With(prometheus.Labels(labels)).Set(value)
	}
}

func (Sink) ObserveDuration(name string, d time.Duration, labels circuitbreaker.Labels) {
	if name == circuitbreaker.MetricCallDuration {
		CircuitCallDuration.With(prometheus.Labels(labels)).Observe(d.Seconds())
	}
}
