package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client is a thin wrapper around a pgx connection pool.
type Client struct {
	DB *pgxpool.Pool
}

// NewClient creates a new PostgreSQL client.
func NewClient(db *pgxpool.Pool) *Client {
	return &Client{DB: db}
}

// Ping checks that the pool can reach the database.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.DB.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PrefixPattern returns a LIKE pattern matching prefix literally. Use with ESCAPE '\'.
func PrefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
