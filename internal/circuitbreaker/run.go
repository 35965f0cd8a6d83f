package circuitbreaker

import "context"

// Run executes fn through cb and returns its result. Convenience wrapper
// for protected functions that return a value; delegates entirely to Do.
func Run[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Do(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
