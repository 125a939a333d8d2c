package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spounge-ai/medvault/internal/infra/config"
)

// NewConnectionPool creates a pgx pool from the database config and verifies it with a ping.
func NewConnectionPool(ctx context.Context, dbConfig config.DatabaseConfig) (*pgxpool.Pool, error) {
	if dbConfig.URL == "" {
		return nil, fmt.Errorf("persistence.database.url is required")
	}

	poolConfig, err := pgxpool.ParseConfig(dbConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	conn := dbConfig.Connection
	if conn.MaxConns > 0 {
		poolConfig.MaxConns = conn.MaxConns
	}
	poolConfig.MinConns = conn.MinConns
	if conn.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = conn.MaxConnIdleTime
	}
	if conn.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = conn.MaxConnLifetime
	}
	if conn.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = conn.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
