package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// RetryPolicy bounds how often a whole operation is re-run after losing an
// optimistic-lock race.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at 10ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: 200 * time.Millisecond}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// IsConflict reports whether err is a lost optimistic-lock race.
func IsConflict(err error) bool {
	return schema.HasCode(err, schema.ErrCodeConcurrentModification)
}

// RetryOnConflict runs op and re-runs it from scratch while it fails with
// CONCURRENT_MODIFICATION. Any other error stops immediately. op must
// re-read everything it depends on.
func RetryOnConflict[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !IsConflict(err) {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return v, err
	}, policy.backOff(ctx))
}
