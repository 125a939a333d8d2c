package domain

import "context"

// KeyWrapper protects domain key bytes before they are persisted.
type KeyWrapper interface {
	Name() string
	Wrap(ctx context.Context, plaintextKey []byte, d Domain) ([]byte, error)
	Unwrap(ctx context.Context, wrappedKey []byte, d Domain) ([]byte, error)
}
