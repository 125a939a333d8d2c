package notify

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles notifications per key, such as a breach type.
type Limiter interface {
	Allow(key string) bool
}

// NewInMemoryRateLimiter keeps one token bucket per key with the given rate
// and burst size.
func NewInMemoryRateLimiter(r rate.Limit, b int) Limiter {
	return &inMemoryRateLimiter{
		rate:    r,
		burst:   b,
		buckets: make(map[string]*rate.Limiter),
	}
}

type inMemoryRateLimiter struct {
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	mu      sync.Mutex
}

func (l *inMemoryRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.buckets[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = limiter
	}

	return limiter.Allow()
}
