package cache

import (
	"context"
	"time"
)

// NoExpiration keeps an entry until it is deleted or the cache is cleared.
const NoExpiration time.Duration = -1

// Store is the key material cache used by the vault and the key wrappers.
type Store[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetOrLoad(ctx context.Context, key K, ttl time.Duration, load func(ctx context.Context) (V, error)) (V, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, key K)
	Clear(ctx context.Context)
	Len() int
	Stop()
}

var _ Store[string, []byte] = (*Cache[string, []byte])(nil)
