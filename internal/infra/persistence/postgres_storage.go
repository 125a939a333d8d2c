package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	consts "github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/pkg/postgres"
)

const pgQueryTimeout = 3 * time.Second

// PostgresStorage stores values in the kv_store table, partitioned by namespace
// so key records and other Tier B data can share one database.
type PostgresStorage struct {
	*PostgresBase
	txManager *TransactionManager[struct{}]
}

func NewPostgresStorage(db *pgxpool.Pool, namespace string, logger *slog.Logger) *PostgresStorage {
	return &PostgresStorage{
		PostgresBase: NewPostgresBase(db, namespace, logger),
		txManager:    NewTransactionManager[struct{}](logger),
	}
}

func (s *PostgresStorage) Name() string { return consts.BackendPostgres }

func (s *PostgresStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	var value []byte
	err := s.DB.QueryRow(ctx, consts.Queries[consts.StmtGetValue], s.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(s.Name(), key)
		}
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStorage) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	_, err := s.txManager.ExecuteInTransaction(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		if err := s.lockKey(ctx, tx, key); err != nil {
			return struct{}{}, err
		}
		_, err := tx.Exec(ctx, consts.Queries[consts.StmtUpsertValue], s.namespace, key, value, time.Now().UTC())
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	if _, err := s.DB.Exec(ctx, consts.Queries[consts.StmtDeleteValue], s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	rows, err := s.DB.Query(ctx, consts.Queries[consts.StmtListKeys], s.namespace, postgres.PrefixPattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStorage) HealthCheck(ctx context.Context) error {
	return s.Ping(ctx)
}
