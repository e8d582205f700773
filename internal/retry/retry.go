package retry

import (
	"context"
	"time"
)

// MaxAllowedRetries is the hard upper bound applied to any policy.
const MaxAllowedRetries = 1

// Policy is a bounded retry policy with a fixed backoff.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Clamped to [0, MaxAllowedRetries].
	MaxRetries int

	// Backoff is the fixed wait between attempts. Zero retries immediately.
	Backoff time.Duration
}

// Normalize returns the policy with its bounds applied.
func (p Policy) Normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MaxRetries > MaxAllowedRetries {
		p.MaxRetries = MaxAllowedRetries
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// Attempts returns the maximum number of attempts.
func (p Policy) Attempts() int {
	return p.Normalize().MaxRetries + 1
}

// Func is one attempt. attempt starts at 0.
type Func func(ctx context.Context, attempt int) error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, no error is retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Context cancellation stops immediately and returns
// the context error.
func Do(ctx context.Context, policy Policy, fn Func, opts *Options) error {
	policy = policy.Normalize()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opts == nil || opts.ShouldRetry == nil || !opts.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxRetries {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr)
		}

		if policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}
