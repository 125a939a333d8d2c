package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	txMaxRetries = 5
	txBaseDelay  = 10 * time.Millisecond
	txMaxDelay   = 250 * time.Millisecond

	pgSerializationFailure = "40001"
)

// TransactionManager runs functions inside serializable transactions and retries
// on serialization failures with jittered exponential backoff.
type TransactionManager[T any] struct {
	logger *slog.Logger
}

func NewTransactionManager[T any](logger *slog.Logger) *TransactionManager[T] {
	return &TransactionManager[T]{logger: logger}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}

func (tm *TransactionManager[T]) ExecuteInTransaction(
	ctx context.Context,
	db *pgxpool.Pool,
	fn func(context.Context, pgx.Tx) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < txMaxRetries; attempt++ {
		result, err := tm.runOnce(ctx, db, fn)
		if err == nil {
			return result, nil
		}
		if !isSerializationFailure(err) {
			return zero, fmt.Errorf("transaction failed: %w", err)
		}

		lastErr = err
		tm.logger.WarnContext(ctx, "serialization failure, retrying", "attempt", attempt+1, "max_attempts", txMaxRetries)

		delay := min(txBaseDelay*time.Duration(1<<attempt), txMaxDelay)
		delay += time.Duration(rand.Int64N(int64(delay / 10)))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("transaction failed after %d retries: %w", txMaxRetries, lastErr)
}

func (tm *TransactionManager[T]) runOnce(
	ctx context.Context,
	db *pgxpool.Pool,
	fn func(context.Context, pgx.Tx) (T, error),
) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := fn(ctx, tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, err
	}
	return result, nil
}
