package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy describes exponential backoff. Nothing is retried unless a
// caller installs RetryMiddleware or calls Retry.
type RetryPolicy struct {
	MaxRetries        int           // attempts after the first call
	BaseDelay         time.Duration // wait before the first retry
	MaxDelay          time.Duration // cap on any single wait
	BackoffMultiplier float64
	Jitter            bool // scale each wait by a random factor in [0.5, 1.5)
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// Delay returns the wait before retry number attempt, counting from zero.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	d = math.Min(d, float64(p.MaxDelay))
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// wait picks the delay for err. A Retry-After hint replaces the backoff; a
// hint longer than MaxDelay means the call is not worth retrying.
func (p RetryPolicy) wait(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
		return hinted, hinted <= p.MaxDelay
	}
	return p.Delay(attempt), true
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. Cancellation while waiting yields an
// *AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}
		delay, ok := policy.wait(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{SDKError{Message: "cancelled while waiting to retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}
}

// RetryMiddleware retries the rest of the chain according to policy.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}
