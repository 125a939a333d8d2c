package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/notify"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func breach(id string, typ domain.BreachType) domain.BreachEvent {
	return domain.BreachEvent{
		Breach:  domain.BreachRecord{ID: id, Type: typ, Timestamp: time.Now()},
		Message: "security breach detected",
	}
}

func TestRateLimiterIsPerKey(t *testing.T) {
	l := notify.NewInMemoryRateLimiter(rate.Every(time.Hour), 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestDispatcherDeliversAndThrottles(t *testing.T) {
	ctx := context.Background()
	d := notify.NewDispatcher(config.NotifyConfig{BufferSize: 8, Interval: time.Hour, Burst: 1}, testutil.DiscardLogger())
	defer d.Close()

	assert.True(t, d.Notify(ctx, breach("1", domain.BreachMultipleFailedAttempts)))
	assert.False(t, d.Notify(ctx, breach("2", domain.BreachMultipleFailedAttempts)))
	assert.True(t, d.Notify(ctx, breach("3", domain.BreachCriticalAction)))
	assert.Equal(t, int64(1), d.Suppressed())

	got := <-d.Events()
	assert.Equal(t, "1", got.Breach.ID)
	got = <-d.Events()
	assert.Equal(t, "3", got.Breach.ID)
}

func TestDispatcherNeverBlocks(t *testing.T) {
	ctx := context.Background()
	d := notify.NewDispatcher(config.NotifyConfig{BufferSize: 1, Burst: 1}, testutil.DiscardLogger())

	require.True(t, d.Notify(ctx, breach("1", domain.BreachCriticalAction)))
	assert.False(t, d.Notify(ctx, breach("2", domain.BreachCriticalAction)))
	assert.Equal(t, int64(1), d.Suppressed())

	d.Close()
	d.Close()
	assert.False(t, d.Notify(ctx, breach("3", domain.BreachCriticalAction)))

	var ids []string
	for ev := range d.Events() {
		ids = append(ids, ev.Breach.ID)
	}
	assert.Equal(t, []string{"1"}, ids)
}
