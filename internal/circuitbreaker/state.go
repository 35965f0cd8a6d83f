// Package circuitbreaker implements a three-state circuit breaker for
// protecting calls to external AI and telephony providers. A breaker admits
// or rejects units of work based on consecutive failure and success streaks,
// records per-outcome metrics, and exposes read-only status snapshots for
// telemetry and administration.
package circuitbreaker

// State represents the circuit breaker state.
//
// The numeric values are part of the telemetry contract: the state gauge
// reports 0 for closed, 1 for half-open, and 2 for open.
type State int

const (
	StateClosed   State = iota // Normal operation; calls pass through.
	StateHalfOpen              // Probing; a bounded number of trial calls allowed.
	StateOpen                  // Failing; calls are rejected immediately.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
