package load

import (
	"context"
	"math/rand"
	"time"

	"github.com/jittakal/rowload/internal/errors"
)

// RetryPolicy wraps an operation with retries. Implementations must not
// retry errors that errors.IsRetryable rejects.
type RetryPolicy interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopRetry runs the operation exactly once.
type NopRetry struct{}

// Do runs fn once, honoring context cancellation.
func (NopRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Backoff retries an operation with exponential backoff and optional
// jitter. Only retryable errors are retried; the first non-retryable
// error aborts immediately.
type Backoff struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// OnRetry, if set, runs before each retry sleep. Used for metrics.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, exhausts attempts, or fails
// non-retryably.
func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := b.InitialBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxDelay := b.MaxBackoff
	if maxDelay < delay {
		maxDelay = delay
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !errors.IsRetryable(last) {
			return last
		}
		if attempt == attempts {
			break
		}

		if b.OnRetry != nil {
			b.OnRetry(attempt, last)
		}

		d := delay
		if b.Jitter {
			d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
		}
		if d > maxDelay {
			d = maxDelay
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return last
}
