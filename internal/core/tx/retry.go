package tx

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds optimistic-concurrency retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
	}
}

// RunWithRetry runs fn in a transaction and retries it while retryable(err) holds.
//
// Retries only happen at the outermost level: when ctx already carries a
// transaction the error is returned as is so the enclosing transaction aborts
// as a whole. The last error is returned once attempts are exhausted.
func RunWithRetry(
	ctx context.Context,
	m Manager,
	policy RetryPolicy,
	retryable func(error) bool,
	fn func(ctx context.Context) error,
) error {
	if m.InTransaction(ctx) {
		return m.RunInTransaction(ctx, fn)
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if waitErr := sleep(ctx, policy.backoff(attempt)); waitErr != nil {
				return err
			}
		}

		err = m.RunInTransaction(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// full jitter
	return time.Duration(rand.Int64N(int64(d) + 1))
}

func sleep(ctx context.Context, d time.Duration) error {
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
