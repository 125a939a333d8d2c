package testutil

import (
	"context"
	"testing"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendContract checks the behavior every domain.Backend must share.
// The backend must start empty.
func RunBackendContract(t *testing.T, b domain.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := b.Get(ctx, "contract_missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "contract_a", []byte("one")))
		got, err := b.Get(ctx, "contract_a")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got)

		require.NoError(t, b.Put(ctx, "contract_a", []byte("two")))
		got, err = b.Get(ctx, "contract_a")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "contract_b", []byte("x")))
		require.NoError(t, b.Put(ctx, "other_c", []byte("y")))
		require.NoError(t, b.Put(ctx, "contract%d", []byte("z")))

		keys, err := b.List(ctx, "contract_")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"contract_a", "contract_b"}, keys)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, b.Delete(ctx, "contract_b"))
		require.NoError(t, b.Delete(ctx, "contract_b"))
		_, err := b.Get(ctx, "contract_b")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
