package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/pkg/patterns/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	var transitions []string

	cb := circuitbreaker.New[int](2, time.Minute,
		circuitbreaker.WithClock[int](clk.Now),
		circuitbreaker.WithStateChange[int](func(from, to circuitbreaker.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	boom := errors.New("boom")
	fail := func(context.Context) (int, error) { return 0, boom }
	ok := func(context.Context) (int, error) { return 7, nil }

	_, err := cb.Execute(ctx, fail)
	require.ErrorIs(t, err, boom)
	_, err = cb.Execute(ctx, fail)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, err = cb.Execute(ctx, ok)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	clk.Advance(2 * time.Minute)
	v, err := cb.Execute(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	cb := circuitbreaker.New[struct{}](2, time.Minute)
	fail := func(context.Context) (struct{}, error) { return struct{}{}, errors.New("x") }
	ok := func(context.Context) (struct{}, error) { return struct{}{}, nil }

	_, _ = cb.Execute(ctx, fail)
	_, _ = cb.Execute(ctx, ok)
	_, _ = cb.Execute(ctx, fail)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}
