package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/pkg/patterns/circuitbreaker"
)

// BreakerStorage adds a circuit breaker to a Backend so an unreachable tier
// fails fast and callers can fall back. Misses do not count as failures.
type BreakerStorage struct {
	next        domain.Backend
	readBreaker *circuitbreaker.Breaker[[]byte]
	listBreaker *circuitbreaker.Breaker[[]string]
	voidBreaker *circuitbreaker.Breaker[struct{}]
}

func NewBreakerStorage(next domain.Backend, maxFailures int, resetTimeout time.Duration, logger *slog.Logger) *BreakerStorage {
	onChange := func(from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed", "backend", next.Name(), "from", from.String(), "to", to.String())
	}
	return &BreakerStorage{
		next:        next,
		readBreaker: circuitbreaker.New[[]byte](maxFailures, resetTimeout, circuitbreaker.WithStateChange[[]byte](onChange)),
		listBreaker: circuitbreaker.New[[]string](maxFailures, resetTimeout, circuitbreaker.WithStateChange[[]string](onChange)),
		voidBreaker: circuitbreaker.New[struct{}](maxFailures, resetTimeout, circuitbreaker.WithStateChange[struct{}](onChange)),
	}
}

func (b *BreakerStorage) Name() string { return b.next.Name() }

func (b *BreakerStorage) wrap(err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s: %w", b.next.Name(), apperrors.ErrCircuitOpen)
	}
	return err
}

func (b *BreakerStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var miss error
	value, err := b.readBreaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		v, err := b.next.Get(ctx, key)
		if IsNotFound(err) {
			miss = err
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	if miss != nil {
		return nil, miss
	}
	return value, nil
}

func (b *BreakerStorage) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.voidBreaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.Put(ctx, key, value)
	})
	return b.wrap(err)
}

func (b *BreakerStorage) Delete(ctx context.Context, key string) error {
	_, err := b.voidBreaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, key)
	})
	return b.wrap(err)
}

func (b *BreakerStorage) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.listBreaker.Execute(ctx, func(ctx context.Context) ([]string, error) {
		return b.next.List(ctx, prefix)
	})
	return keys, b.wrap(err)
}

// HealthCheck forwards to the wrapped backend when it supports probing.
func (b *BreakerStorage) HealthCheck(ctx context.Context) error {
	if hc, ok := b.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
