package circuitbreaker

import "time"

// Metric names emitted by the breaker. A MetricsSink implementation maps
// these to its collector's instruments.
const (
	MetricCalls        = "callguard_breaker_calls_total"
	MetricRejections   = "callguard_breaker_rejections_total"
	MetricTransitions  = "callguard_breaker_transitions_total"
	MetricState        = "callguard_breaker_state"
	MetricCallDuration = "callguard_breaker_call_duration_seconds"
)

// Label keys used on emitted metrics.
const (
	LabelCircuit  = "circuit"
	LabelResource = "resource"
	LabelOutcome  = "outcome"
	LabelFrom     = "from"
	LabelTo       = "to"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Labels is a set of metric label key/value pairs.
type Labels map[string]string

// MetricsSink receives telemetry from a circuit breaker. Implementations
// must be safe for concurrent use; the breaker may call them while holding
// its internal lock, so they must not block.
type MetricsSink interface {
	// IncCounter increments the named counter by one.
	IncCounter(name string, labels Labels)

	// SetGauge sets the named gauge to value.
	SetGauge(name string, value float64, labels Labels)

	// ObserveDuration records d on the named duration histogram.
	ObserveDuration(name string, d time.Duration, labels Labels)
}

// NopSink is a MetricsSink that discards everything. It is the default sink
// and the usual choice in tests.
type NopSink struct{}

func (NopSink) IncCounter(string, Labels)                     {}
func (NopSink) SetGauge(string, float64, Labels)              {}
func (NopSink) ObserveDuration(string, time.Duration, Labels) {}
