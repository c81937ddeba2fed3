package oracle

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Operation is a single oracle attempt wrapped for retry.
type Operation func(ctx context.Context) (*ChatResponse, error)

// RetryPolicy controls how transient failures are retried.
// Attempts is the total number of invocations, not the number of retries
// after the first failure.
type RetryPolicy struct {
	Attempts    int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// sleep is replaceable in tests. Nil means time.Sleep honoring ctx.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the retry policy used for oracle calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    3,
		BackoffBase: 1500 * time.Millisecond,
		BackoffMax:  10 * time.Second,
	}
}

// Delay returns the backoff before the attempt with the given index,
// starting at 0 for the first retry. The exponential curve is capped at
// BackoffMax before jitter, and jitter is symmetric so the result never
// exceeds 1.2x the cap.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.BackoffBase) * math.Pow(2, float64(attempt))
	capped := math.Min(base, float64(p.BackoffMax))
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(capped * jitter)
}

// CallWithRetry invokes op up to policy.Attempts times. Permanent errors
// propagate immediately; transient errors are retried with exponential
// backoff. The error from the final failed attempt is returned unmodified.
func CallWithRetry(ctx context.Context, policy RetryPolicy, op Operation) (*ChatResponse, error) {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	sleep := policy.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, policy.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
