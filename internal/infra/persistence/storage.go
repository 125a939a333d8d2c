// Package persistence holds the storage backends behind domain.Backend: the
// local file store used as Tier A, and the Postgres, S3 and HashiCorp Vault
// stores that can serve as Tier B.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
)

// HealthChecker is implemented by backends that can probe their remote end.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IsNotFound reports whether err is a backend miss rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

func notFound(backend, key string) error {
	return fmt.Errorf("%s: %q: %w", backend, key, apperrors.ErrNotFound)
}

var (
	_ domain.Backend = (*FileStorage)(nil)
	_ domain.Backend = (*MemoryStorage)(nil)
	_ domain.Backend = (*PostgresStorage)(nil)
	_ domain.Backend = (*S3Storage)(nil)
	_ domain.Backend = (*VaultStorage)(nil)
	_ domain.Backend = (*BreakerStorage)(nil)
)
