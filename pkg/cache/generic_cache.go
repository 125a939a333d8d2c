package cache

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

type entry[V any] struct {
	value V
	// zero means the entry never expires
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a concurrent TTL map. Entries leaving the cache through expiry,
// Delete or Clear are handed to the eviction callback, which the key holders
// use to zero key bytes.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	loadMu   sync.Mutex
	entries  map[K]entry[V]
	ttl      time.Duration
	interval time.Duration
	onEvict  func(K, V)
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type Option[K comparable, V any] func(*Cache[K, V])

func WithDefaultTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.ttl = ttl }
}

func WithCleanupInterval[K comparable, V any](interval time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.interval = interval }
}

func WithEvictionCallback[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:  make(map[K]entry[V]),
		ttl:      DefaultTTL,
		interval: DefaultCleanupInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval > 0 {
		go c.janitor()
	}
	return c
}

func (c *Cache[K, V]) expiry(ttl time.Duration) time.Time {
	switch {
	case ttl == NoExpiration:
		return time.Time{}
	case ttl == 0:
		ttl = c.ttl
	}
	return c.now().Add(ttl)
}

// Set stores value under key. A ttl of 0 uses the default, NoExpiration keeps
// the entry until it is removed.
func (c *Cache[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.expiry(ttl)}
	c.mu.Unlock()
}

// Get returns a live entry. Expired entries are left for the janitor.
func (c *Cache[K, V]) Get(_ context.Context, key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrLoad returns the cached value or stores the result of load. Concurrent
// misses are serialized so load runs once per key.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, ttl time.Duration, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}

func (c *Cache[K, V]) Delete(_ context.Context, key K) {
	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok {
		c.evict(key, e.value)
	}
}

// Clear empties the cache, evicting every entry.
func (c *Cache[K, V]) Clear(_ context.Context) {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
	for k, e := range old {
		c.evict(k, e.value)
	}
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop ends the janitor goroutine. It is safe to call more than once.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) evict(key K, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}

func (c *Cache[K, V]) janitor() {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.purgeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[K, V]) purgeExpired() {
	now := c.now()
	evicted := make(map[K]V)
	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired(now) {
			evicted[k] = e.value
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	for k, v := range evicted {
		c.evict(k, v)
	}
}
