package circuitbreaker

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultTimeout          = 60 * time.Second
	DefaultHalfOpenMaxCalls = 3
)

// halfOpenRetryAfter is the fixed retry delay reported when a call is
// rejected because the half-open trial capacity is exhausted. It is
// deliberately short and independent of Config.Timeout: while the breaker is
// probing recovery, callers should come back quickly rather than wait out a
// full open window.
const halfOpenRetryAfter = 5 * time.Second

// Config holds the immutable tunables for a single circuit breaker.
// The zero value of each numeric field is replaced by the corresponding
// default at construction.
type Config struct {
	// Name identifies the breaker in logs, metrics labels, and errors.
	Name string

	// FailureThreshold is the number of consecutive failures in closed
	// state that trips the breaker open. Default 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state required to close the breaker. Default 2.
	SuccessThreshold int

	// Timeout is how long the breaker stays open before a call may
	// transition it to half-open. Default 60s.
	Timeout time.Duration

	// HalfOpenMaxCalls caps the number of concurrent in-flight trial calls
	// while half-open. Default 3.
	HalfOpenMaxCalls int
}

// withDefaults returns a copy of cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// Validate reports the first invalid field, or nil. Called at construction
// so misconfiguration fails fast rather than on first call.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("circuit breaker name is required")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success_threshold must be positive, got %d", c.SuccessThreshold)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.HalfOpenMaxCalls < 1 {
		return fmt.Errorf("half_open_max_calls must be positive, got %d", c.HalfOpenMaxCalls)
	}
	return nil
}
