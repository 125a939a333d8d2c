package kms

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/pkg/cache"
	"github.com/spounge-ai/medvault/pkg/crypto"
	"github.com/spounge-ai/medvault/pkg/execution"
	"github.com/spounge-ai/medvault/pkg/memory"
)

const (
	NameLocal = "local"

	localKmsTimeout      = 1 * time.Second
	derivedKeyCacheTTL   = 1 * time.Hour
	derivedKeyCacheClean = 5 * time.Minute
)

// LocalWrapper wraps domain keys under a key derived per domain from a local
// master key.
type LocalWrapper struct {
	masterKey       []byte
	derivedKeyCache *cache.Cache[domain.Domain, []byte]
}

func NewLocalWrapper(masterKey string) (*LocalWrapper, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) < crypto.KeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", crypto.KeySize, len(key))
	}
	return &LocalWrapper{
		masterKey: key,
		derivedKeyCache: cache.New(
			cache.WithDefaultTTL[domain.Domain, []byte](derivedKeyCacheTTL),
			cache.WithCleanupInterval[domain.Domain, []byte](derivedKeyCacheClean),
			cache.WithEvictionCallback(func(_ domain.Domain, k []byte) { memory.SecureZeroBytes(k) }),
		),
	}, nil
}

func (w *LocalWrapper) Name() string { return NameLocal }

func (w *LocalWrapper) derivedKey(ctx context.Context, d domain.Domain) ([]byte, error) {
	return w.derivedKeyCache.GetOrLoad(ctx, d, 0, func(context.Context) ([]byte, error) {
		salt, info := wrappingKeyParams(d)
		k, err := DeriveKey(w.masterKey, salt, info, crypto.KeySize)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
		return k, nil
	})
}

func (w *LocalWrapper) Wrap(ctx context.Context, plaintextKey []byte, d domain.Domain) ([]byte, error) {
	return execution.WithTimeout(ctx, localKmsTimeout, func(ctx context.Context) ([]byte, error) {
		k, err := w.derivedKey(ctx, d)
		if err != nil {
			return nil, err
		}
		aead, err := crypto.NewAEAD(k)
		if err != nil {
			return nil, err
		}
		return crypto.SealPrefixed(aead, plaintextKey, []byte(d))
	})
}

func (w *LocalWrapper) Unwrap(ctx context.Context, wrappedKey []byte, d domain.Domain) ([]byte, error) {
	return execution.WithTimeout(ctx, localKmsTimeout, func(ctx context.Context) ([]byte, error) {
		if len(wrappedKey) == 0 {
			return nil, fmt.Errorf("no wrapped key")
		}
		k, err := w.derivedKey(ctx, d)
		if err != nil {
			return nil, err
		}
		aead, err := crypto.NewAEAD(k)
		if err != nil {
			return nil, err
		}
		plain, err := crypto.OpenPrefixed(aead, wrappedKey, []byte(d))
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap %s key: %w", d, err)
		}
		return plain, nil
	})
}

// Close zeroes the derived keys and the master key.
func (w *LocalWrapper) Close() error {
	w.derivedKeyCache.Clear(context.Background())
	w.derivedKeyCache.Stop()
	memory.SecureZeroBytes(w.masterKey)
	return nil
}
