package execution

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks an operation cut off by WithTimeout's own deadline, as
// opposed to the caller's context ending.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn under a deadline of timeout. A non-positive timeout runs
// fn with ctx unchanged. fn must honor cancellation of the context it is given.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
	}
	return v, err
}
