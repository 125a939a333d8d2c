package persistence

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spounge-ai/medvault/pkg/postgres"
)

// PostgresBase holds what every kv_store-backed store shares: the pool and a
// namespace that partitions the table.
type PostgresBase struct {
	*postgres.Client
	namespace string
	logger    *slog.Logger
}

func NewPostgresBase(db *pgxpool.Pool, namespace string, logger *slog.Logger) *PostgresBase {
	return &PostgresBase{
		Client:    postgres.NewClient(db),
		namespace: namespace,
		logger:    logger,
	}
}

// lockKey serializes writers of one key until tx ends. The lock id is an FNV
// hash of namespace and key, so two keys may occasionally share a lock.
func (b *PostgresBase) lockKey(ctx context.Context, tx pgx.Tx, key string) error {
	h := fnv.New64a()
	h.Write([]byte(b.namespace))
	h.Write([]byte{0})
	h.Write([]byte(key))
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(h.Sum64())); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}
