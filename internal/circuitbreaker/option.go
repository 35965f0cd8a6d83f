package circuitbreaker

import (
	"log/slog"
	"time"
)

// Clock abstracts time for testing. The default implementation uses
// time.Now.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures collaborators on a CircuitBreaker. Tunables live in
// Config; options inject the sink, logger, and clock.
type Option func(*CircuitBreaker)

// WithSink sets the metrics sink. Default is NopSink.
func WithSink(s MetricsSink) Option {
	return func(cb *CircuitBreaker) {
		cb.sink = s
	}
}

// WithLogger sets the logger used for state transition and administrative
// log lines. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = l
	}
}

// WithClock sets the clock used for open-window and timestamp bookkeeping.
// Useful for deterministic tests.
func WithClock(c Clock) Option {
	return func(cb *CircuitBreaker) {
		cb.clock = c
	}
}
