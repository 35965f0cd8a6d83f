package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is the unit of work a breaker protects.
type Func func(ctx context.Context) error

// CircuitBreaker gates calls to a single protected resource. One long-lived
// instance is shared per upstream provider; all methods are safe for
// concurrent use.
//
// The mutex guards only bookkeeping (admission, outcome recording, state
// transitions). The protected work always runs outside the lock, so lock
// hold time is independent of downstream latency and multiple admitted
// calls execute concurrently.
type CircuitBreaker struct {
	cfg      Config
	resource string

	sink   MetricsSink
	logger *slog.Logger
	clock  Clock

	mu            sync.Mutex
	state         State
	openedAt      time.Time // set while open, zero otherwise
	halfOpenCalls int       // in-flight trial calls while half-open
	metrics       Metrics
}

// New creates a closed CircuitBreaker for the given resource. cfg zero
// fields take defaults; invalid configuration is rejected here rather than
// on first call. resource is a free-form label used in metrics and status.
func New(cfg Config, resource string, opts ...Option) (*CircuitBreaker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	cb := &CircuitBreaker{
		cfg:      cfg,
		resource: resource,
		state:    StateClosed,
		sink:     NopSink{},
		logger:   slog.Default(),
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	cb.sink.SetGauge(MetricState, float64(StateClosed), cb.labels())
	return cb, nil
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Resource returns the protected resource label.
func (cb *CircuitBreaker) Resource() string { return cb.resource }

// Do executes fn with circuit breaker protection. If the call is rejected,
// fn is never invoked and an *OpenError carrying the retry delay is
// returned. Otherwise fn runs exactly once and its error, if any, is
// returned unmodified after outcome bookkeeping. The breaker performs no
// retries and imposes no deadline on fn.
func (cb *CircuitBreaker) Do(ctx context.Context, fn Func) error {
	if err := cb.admit(); err != nil {
		return err
	}

	start := cb.clock.Now()
	err := fn(ctx)
	elapsed := cb.clock.Now().Sub(start)

	if err != nil {
		cb.onFailure(elapsed)
		return err
	}
	cb.onSuccess(elapsed)
	return nil
}

// Wrap returns a closure that routes every invocation of fn through Do.
// Strict delegation: all Do guarantees apply unchanged.
func (cb *CircuitBreaker) Wrap(fn Func) Func {
	return func(ctx context.Context) error {
		return cb.Do(ctx, fn)
	}
}

// admit decides whether a call may proceed. On admission it counts the call
// and, while half-open, claims a trial slot. On rejection it records the
// rejection and returns an *OpenError.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		// Always admit.
	case StateOpen:
		elapsed := cb.clock.Now().Sub(cb.openedAt)
		if elapsed < cb.cfg.Timeout {
			return cb.reject(cb.cfg.Timeout - elapsed)
		}
		// Open window elapsed: this call becomes the first recovery trial.
		cb.transitionTo(StateHalfOpen)
		cb.halfOpenCalls++
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return cb.reject(halfOpenRetryAfter)
		}
		cb.halfOpenCalls++
	}

	cb.metrics.TotalCalls++
	return nil
}

// reject records a rejected call. Must be called with cb.mu held.
func (cb *CircuitBreaker) reject(retryAfter time.Duration) error {
	cb.metrics.RejectedCalls++
	cb.sink.IncCounter(MetricRejections, cb.labels())
	return &OpenError{Circuit: cb.cfg.Name, RetryAfter: retryAfter}
}

// onSuccess records a successful call and drives half-open recovery.
func (cb *CircuitBreaker) onSuccess(elapsed time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	cb.metrics.SuccessfulCalls++
	cb.metrics.ConsecutiveSuccesses++
	cb.metrics.ConsecutiveFailures = 0
	cb.metrics.LastSuccessTime = &now

	if cb.state == StateHalfOpen {
		cb.releaseTrialSlot()
		if cb.metrics.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}

	cb.emitOutcome(OutcomeSuccess, elapsed)
}

// onFailure records a failed call. A single failure while half-open reopens
// the circuit; in closed state the consecutive streak is checked against
// the failure threshold.
func (cb *CircuitBreaker) onFailure(elapsed time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	cb.metrics.FailedCalls++
	cb.metrics.ConsecutiveFailures++
	cb.metrics.ConsecutiveSuccesses = 0
	cb.metrics.LastFailureTime = &now

	switch cb.state {
	case StateHalfOpen:
		cb.releaseTrialSlot()
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.metrics.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	}

	cb.emitOutcome(OutcomeFailure, elapsed)
}

// releaseTrialSlot frees a half-open in-flight slot, floored at zero.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) releaseTrialSlot() {
	if cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

// transitionTo changes state, resets the counters the target state
// redefines, and emits the transition counter, state gauge, and a log line.
// No-op when target equals current. Must be called with cb.mu held.
func (cb *CircuitBreaker) transitionTo(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	now := cb.clock.Now()
	cb.metrics.StateTransitions++
	cb.metrics.LastStateChange = &now

	switch to {
	case StateOpen:
		// The failure streak that tripped the breaker is kept.
		cb.openedAt = now
		cb.metrics.ConsecutiveSuccesses = 0
	case StateHalfOpen:
		cb.halfOpenCalls = 0
		cb.metrics.ConsecutiveFailures = 0
		cb.metrics.ConsecutiveSuccesses = 0
	case StateClosed:
		cb.openedAt = time.Time{}
		cb.halfOpenCalls = 0
		cb.metrics.ConsecutiveFailures = 0
	}

	transLabels := cb.labels()
	transLabels[LabelFrom] = from.String()
	transLabels[LabelTo] = to.String()
	cb.sink.IncCounter(MetricTransitions, transLabels)
	cb.sink.SetGauge(MetricState, float64(to), cb.labels())

	cb.logger.Info("circuit breaker state change",
		"circuit", cb.cfg.Name,
		"resource", cb.resource,
		"from", from.String(),
		"to", to.String(),
	)
}

// emitOutcome reports a completed call to the sink. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) emitOutcome(outcome string, elapsed time.Duration) {
	labels := cb.labels()
	labels[LabelOutcome] = outcome
	cb.sink.IncCounter(MetricCalls, labels)
	cb.sink.ObserveDuration(MetricCallDuration, elapsed, labels)
}

// labels returns a fresh base label set for this breaker.
func (cb *CircuitBreaker) labels() Labels {
	return Labels{
		LabelCircuit:  cb.cfg.Name,
		LabelResource: cb.resource,
	}
}

// Reset forces the breaker closed and zeroes both consecutive streaks,
// bypassing the normal thresholds. Intended for operator use after a fix
// has been confirmed manually.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateClosed)
	cb.metrics.ConsecutiveFailures = 0
	cb.metrics.ConsecutiveSuccesses = 0

	cb.logger.Info("circuit breaker reset",
		"circuit", cb.cfg.Name,
		"resource", cb.resource,
	)
}

// ForceOpen forces the breaker open unconditionally. Intended for
// maintenance windows.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateOpen)

	cb.logger.Info("circuit breaker forced open",
		"circuit", cb.cfg.Name,
		"resource", cb.resource,
	)
}

// State returns the current state. It is a pure read: an elapsed open
// window does not transition the breaker until a call arrives.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a copy of the breaker's metrics.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metrics
}

// Config returns the active configuration.
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// Status returns a read-only snapshot of the breaker. It never mutates
// state: repeated calls without intervening activity return identical
// values (modulo the shrinking retry-after while open).
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := Status{
		Name:     cb.cfg.Name,
		Resource: cb.resource,
		State:    cb.state.String(),
		Metrics: MetricsStatus{
			TotalCalls:           cb.metrics.TotalCalls,
			SuccessfulCalls:      cb.metrics.SuccessfulCalls,
			FailedCalls:          cb.metrics.FailedCalls,
			RejectedCalls:        cb.metrics.RejectedCalls,
			SuccessRate:          cb.metrics.successRate(),
			StateTransitions:     cb.metrics.StateTransitions,
			ConsecutiveFailures:  cb.metrics.ConsecutiveFailures,
			ConsecutiveSuccesses: cb.metrics.ConsecutiveSuccesses,
			LastFailureTime:      formatTime(cb.metrics.LastFailureTime),
			LastSuccessTime:      formatTime(cb.metrics.LastSuccessTime),
			LastStateChange:      formatTime(cb.metrics.LastStateChange),
		},
		Config: ConfigStatus{
			FailureThreshold: cb.cfg.FailureThreshold,
			SuccessThreshold: cb.cfg.SuccessThreshold,
			TimeoutSeconds:   cb.cfg.Timeout.Seconds(),
			HalfOpenMaxCalls: cb.cfg.HalfOpenMaxCalls,
		},
	}

	if cb.state == StateOpen {
		remaining := cb.cfg.Timeout - cb.clock.Now().Sub(cb.openedAt)
		if remaining < 0 {
			remaining = 0
		}
		secs := remaining.Seconds()
		st.RetryAfterSeconds = &secs
	}

	return st
}
