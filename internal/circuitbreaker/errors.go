package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// OpenError is returned when a call is rejected without invoking the
// protected work, either because the breaker is open or because the
// half-open trial capacity is exhausted. It is the only error the breaker
// itself produces; errors from the protected work propagate unmodified.
type OpenError struct {
	// Circuit is the name of the breaker that rejected the call.
	Circuit string

	// RetryAfter is how long the caller should wait before retrying.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry after %s", e.Circuit, e.RetryAfter)
}

// IsOpen reports whether err is a circuit breaker rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
