package execution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/pkg/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	v, err := execution.WithRetry(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryReturnsLastError(t *testing.T) {
	attempts := 0
	_, err := execution.WithRetry(context.Background(), 2, time.Millisecond, time.Millisecond, func(context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, errors.New("permanent")
	})
	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 2, attempts)
}

func TestWithTimeoutCancels(t *testing.T) {
	_, err := execution.WithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, execution.ErrTimeout)
}

func TestWithTimeoutParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := execution.WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, execution.ErrTimeout)
}

func TestWithTimeoutZeroRunsWithoutDeadline(t *testing.T) {
	_, err := execution.WithTimeout(context.Background(), 0, func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return 1, nil
	})
	require.NoError(t, err)
}
