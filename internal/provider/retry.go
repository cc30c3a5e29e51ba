package provider

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy retries transient provider failures with exponential backoff.
// Only ErrProviderUnavailable is retried; definitive answers pass through.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy suits interactive request paths.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Do runs operation until it succeeds, fails non-transiently, exhausts the
// attempt budget, or the context is cancelled.
func (policy RetryPolicy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrProviderUnavailable) {
			return lastErr
		}
	}
	return lastErr
}
