package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds configuration for attempt-bounded retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// AttemptTimeout bounds each attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration

	// Delay returns how long to wait before the given retry (1-based).
	// If nil, retries are immediate.
	Delay func(retry int) time.Duration

	// FinalUnbounded adds one more attempt after the retries, bounded only by
	// the parent context.
	FinalUnbounded bool

	// Retryable decides whether a failed attempt should be retried.
	// If nil, all errors are considered retryable.
	Retryable func(error) bool
}

// LinearDelay returns a Delay function waiting step*retry before each retry.
func LinearDelay(step time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		return step * time.Duration(retry)
	}
}

// DefaultRetryConfig returns the configuration used for remote resources:
// five retries, one second per attempt, 500ms linear backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		AttemptTimeout: time.Second,
		Delay:          LinearDelay(500 * time.Millisecond),
	}
}

// RetryWithTimeout runs fn until it succeeds, a non-retryable error is
// returned, or the attempts are exhausted.
//
// Each attempt receives its own context derived from ctx. When AttemptTimeout
// is set, that context is cancelled after the timeout; fn must honour it.
// There is no overall deadline besides ctx itself.
//
// Returns:
//   - nil if an attempt succeeds
//   - the non-retryable error as-is
//   - "retry cancelled" if ctx is done while waiting
//   - "max retries exceeded" wrapping the last error otherwise
func RetryWithTimeout(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := config.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && config.Delay != nil {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(config.Delay(attempt)):
			}
		}

		err := runAttempt(ctx, config.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	if config.FinalUnbounded {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
