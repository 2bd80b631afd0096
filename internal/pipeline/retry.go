package pipeline

import (
	"context"
	"math/rand"
	"time"

	"listory/internal/llm"
)

type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
	// Retryable decides whether an attempt error is worth another call.
	Retryable func(err error) bool
	OnRetry   func(attempt int, wait time.Duration, err error)
}

// DefaultRetry allows three attempts in total.
func DefaultRetry() RetryOptions {
	return RetryOptions{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, Jitter: 0.2}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withExponentialBackoff calls fn until it succeeds, returns a non retryable
// error, the attempts run out or ctx is done. It returns the number of
// attempts made and the last error.
func withExponentialBackoff(ctx context.Context, opts RetryOptions, sleep sleepFunc, fn func(attempt int) error) (int, error) {
	attempts := opts.MaxRetries + 1
	if attempts <= 0 {
		attempts = 1
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	jitter := opts.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if opts.Retryable != nil && !opts.Retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == attempts {
			break
		}
		wait := backoffDuration(attempt, base, maxDelay, jitter)
		if llm.IsRateLimited(lastErr) {
			rateLimitWait := time.Duration(attempt*attempt) * time.Second
			if wait < rateLimitWait {
				wait = rateLimitWait
			}
			wait = applyJitter(wait, 0.35)
			if wait > 60*time.Second {
				wait = 60 * time.Second
			}
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
	return attempts, lastErr
}

func backoffDuration(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := base << shift
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	if jitter == 0 {
		return delay
	}
	out := applyJitter(delay, jitter)
	if out < 0 {
		return 0
	}
	return out
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	low := 1 - jitter
	high := 1 + jitter
	factor := low + rand.Float64()*(high-low)
	return time.Duration(float64(delay) * factor)
}
