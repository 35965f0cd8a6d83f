package circuitbreaker

import "time"

// Metrics holds the counters and timestamps a breaker tracks about itself.
// All counters are monotonically non-decreasing except the consecutive
// streaks, which reset on the opposite outcome and on state transitions.
// ConsecutiveFailures and ConsecutiveSuccesses are never both nonzero.
type Metrics struct {
	TotalCalls      uint64
	SuccessfulCalls uint64
	FailedCalls     uint64
	RejectedCalls   uint64

	StateTransitions uint64

	ConsecutiveFailures  int
	ConsecutiveSuccesses int

	LastFailureTime *time.Time
	LastSuccessTime *time.Time
	LastStateChange *time.Time
}

// successRate returns successful/total as a percentage, or 0 when no calls
// have completed or been rejected.
func (m Metrics) successRate() float64 {
	if m.TotalCalls == 0 {
		return 0
	}
	return float64(m.SuccessfulCalls) / float64(m.TotalCalls) * 100
}

// Status is a read-only snapshot of a breaker, shaped for the admin API and
// external telemetry collectors.
type Status struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	State    string `json:"state"`

	// RetryAfterSeconds is the remaining open window. Set only while the
	// breaker is open.
	RetryAfterSeconds *float64 `json:"retry_after_seconds,omitempty"`

	Metrics MetricsStatus `json:"metrics"`
	Config  ConfigStatus  `json:"config"`
}

// MetricsStatus is the metrics portion of a Status snapshot. Timestamps are
// RFC 3339 strings, nil until the corresponding event first occurs.
type MetricsStatus struct {
	TotalCalls           uint64  `json:"total_calls"`
	SuccessfulCalls      uint64  `json:"successful_calls"`
	FailedCalls          uint64  `json:"failed_calls"`
	RejectedCalls        uint64  `json:"rejected_calls"`
	SuccessRate          float64 `json:"success_rate"`
	StateTransitions     uint64  `json:"state_transitions"`
	ConsecutiveFailures  int     `json:"consecutive_failures"`
	ConsecutiveSuccesses int     `json:"consecutive_successes"`
	LastFailureTime      *string `json:"last_failure_time"`
	LastSuccessTime      *string `json:"last_success_time"`
	LastStateChange      *string `json:"last_state_change"`
}

// ConfigStatus is the active configuration portion of a Status snapshot.
type ConfigStatus struct {
	FailureThreshold int     `json:"failure_threshold"`
	SuccessThreshold int     `json:"success_threshold"`
	TimeoutSeconds   float64 `json:"timeout_seconds"`
	HalfOpenMaxCalls int     `json:"half_open_max_calls"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
