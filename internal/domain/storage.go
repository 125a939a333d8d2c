package domain

import "context"

// Backend is the single capability every storage tier implements.
// Get returns errors.ErrNotFound when the key is absent.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
