package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/pkg/cache"
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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newCache(t *testing.T, clk *clock, onEvict func(string, []byte)) *cache.Cache[string, []byte] {
	t.Helper()
	opts := []cache.Option[string, []byte]{
		cache.WithDefaultTTL[string, []byte](time.Minute),
		cache.WithCleanupInterval[string, []byte](0),
		cache.WithClock[string, []byte](clk.Now),
	}
	if onEvict != nil {
		opts = append(opts, cache.WithEvictionCallback(onEvict))
	}
	c := cache.New(opts...)
	t.Cleanup(c.Stop)
	return c
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	c := newCache(t, clk, nil)

	c.Set(ctx, "default", []byte("a"), 0)
	c.Set(ctx, "short", []byte("b"), time.Second)
	c.Set(ctx, "forever", []byte("c"), cache.NoExpiration)

	clk.Advance(2 * time.Second)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
	v, ok := c.Get(ctx, "default")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	clk.Advance(time.Hour)
	_, ok = c.Get(ctx, "default")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestClearAndDeleteEvict(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	c := newCache(t, &clock{now: time.Now()}, func(k string, v []byte) {
		evicted = append(evicted, k)
		for i := range v {
			v[i] = 0
		}
	})

	key := []byte{1, 2, 3}
	c.Set(ctx, "a", key, 0)
	c.Set(ctx, "b", []byte{4}, 0)
	c.Delete(ctx, "a")
	assert.Equal(t, []byte{0, 0, 0}, key)

	c.Clear(ctx)
	assert.ElementsMatch(t, []string{"a", "b"}, evicted)
	assert.Zero(t, c.Len())
}

func TestGetOrLoadRunsLoaderOnce(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, &clock{now: time.Now()}, nil)

	var calls atomic.Int32
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("derived"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(ctx, "k", 0, load)
			assert.NoError(t, err)
			assert.Equal(t, []byte("derived"), v)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, &clock{now: time.Now()}, nil)

	boom := errors.New("boom")
	_, err := c.GetOrLoad(ctx, "k", 0, func(context.Context) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	c := cache.New[string, int](cache.WithCleanupInterval[string, int](time.Millisecond))
	c.Stop()
	c.Stop()
}
