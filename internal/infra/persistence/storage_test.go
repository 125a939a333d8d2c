package persistence_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/constants"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/validation"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageContract(t *testing.T) {
	fs, err := persistence.NewFileStorage(t.TempDir(), testutil.DiscardLogger())
	require.NoError(t, err)
	testutil.RunBackendContract(t, fs)
}

func TestMemoryStorageContract(t *testing.T) {
	testutil.RunBackendContract(t, persistence.NewMemoryStorage())
}

func TestFileStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := persistence.NewFileStorage(dir, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, fs.Put(ctx, "encrypted_notes/2024", []byte(`{"a":1}`)))

	reopened, err := persistence.NewFileStorage(dir, testutil.DiscardLogger())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "encrypted_notes/2024")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	keys, err := reopened.List(ctx, "encrypted_")
	require.NoError(t, err)
	assert.Equal(t, []string{"encrypted_notes/2024"}, keys)
}

func TestFileStorageIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "!!!.json"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "truncated.rec"), []byte{0x80}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "renamed.rec"), []byte("\x03abcvalue"), 0o600))

	fs, err := persistence.NewFileStorage(dir, testutil.DiscardLogger())
	require.NoError(t, err)
	keys, err := fs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStorageLongAndMultiByteKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := persistence.NewFileStorage(dir, testutil.DiscardLogger())
	require.NoError(t, err)

	names := []string{
		strings.Repeat("a", validation.MaxRecordNameLen),
		strings.Repeat("é", validation.MaxRecordNameLen),
		strings.Repeat("病", validation.MaxRecordNameLen),
	}
	var want []string
	for i, name := range names {
		key := constants.RecordPrefix + name
		want = append(want, key)
		value := []byte(fmt.Sprintf(`{"n":%d}`, i))
		require.NoError(t, fs.Put(ctx, key, value), "key of %d bytes", len(key))

		got, err := fs.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.LessOrEqual(t, len(e.Name()), 255)
	}

	keys, err := fs.List(ctx, constants.RecordPrefix)
	require.NoError(t, err)
	sort.Strings(want)
	assert.Equal(t, want, keys)

	require.NoError(t, fs.Delete(ctx, want[0]))
	_, err = fs.Get(ctx, want[0])
	assert.True(t, persistence.IsNotFound(err))
}

func TestMemoryStorageCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := persistence.NewMemoryStorage()
	value := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", value))
	value[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestBreakerStorageFailsFast(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewFaultyBackend("tier-b", persistence.NewMemoryStorage())
	b := persistence.NewBreakerStorage(inner, 2, time.Hour, testutil.DiscardLogger())

	_, err := b.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "misses pass through")

	inner.FailGet.Store(true)
	for i := 0; i < 2; i++ {
		_, err = b.Get(ctx, "k")
		require.ErrorIs(t, err, testutil.ErrInjected)
	}

	calls := inner.Calls("get")
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, calls, inner.Calls("get"), "open breaker must not reach the backend")
}

func TestBreakerStorageMissesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	b := persistence.NewBreakerStorage(persistence.NewMemoryStorage(), 1, time.Hour, testutil.DiscardLogger())
	for i := 0; i < 5; i++ {
		_, err := b.Get(ctx, "missing")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	}
	require.NoError(t, b.Put(ctx, "k", []byte("v")))
}
