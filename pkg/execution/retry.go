package execution

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// WithRetry runs fn up to maxRetries times with jittered exponential backoff
// between attempts. It stops early when ctx is done and returns the last error.
func WithRetry[T any](ctx context.Context, maxRetries int, initialBackoff time.Duration, maxBackoff time.Duration, fn RetryableFunc[T]) (T, error) {
	var result T
	var err error

	for i := 0; i < maxRetries; i++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if i == maxRetries-1 {
			break
		}

		backoff := min(initialBackoff*time.Duration(1<<i), maxBackoff)
		jitter := time.Duration(rand.Int64N(int64(backoff/10) + 1))

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return result, err
}
