package stream

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds whole-pipeline retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first; values below 1 mean 1.
	MaxAttempts int
	// Delay is the wait between attempts.
	Delay time.Duration
	// OnError observes every failed attempt, retried or not.
	OnError func(attempt int, err error)
	// Retryable classifies errors; nil means IsRetryable.
	Retryable func(err error) bool
}

// attempts returns the effective attempt budget.
func (policy RetryPolicy) attempts() int {
	if policy.MaxAttempts < 1 {
		return 1
	}
	return policy.MaxAttempts
}

// Retry runs operation until it succeeds, the budget is spent, or an error is not retryable.
// The value from the last attempt is returned alongside a *RetryError so callers
// can still inspect partial output.
func Retry[T any](ctx context.Context, policy RetryPolicy, operation func(ctx context.Context, attempt int) (T, error)) (T, error) {
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	maxAttempts := policy.attempts()

	var value T
	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		var err error
		value, err = operation(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if policy.OnError != nil {
			policy.OnError(attempt, err)
		}
		if attempt == maxAttempts || !retryable(err) {
			break
		}
		if err := sleepContext(ctx, policy.Delay); err != nil {
			return value, &RetryError{Attempts: attempt, Err: errors.Join(err, lastErr)}
		}
	}
	return value, &RetryError{Attempts: attempt, Err: lastErr}
}

// sleepContext waits for delay or until ctx is done.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
