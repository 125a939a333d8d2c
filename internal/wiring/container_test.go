package wiring_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/wiring"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArchive struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memoryArchive) CreateAuditEntriesBatch(_ context.Context, entries []domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
	return nil
}

func (a *memoryArchive) GetAuditHistory(_ context.Context, action string, limit int) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if action == "" || a.entries[i].Action == action {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

func (a *memoryArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "storage:\n  dir: " + dir + "\narchive:\n  batch_timeout: 10ms\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func start(t *testing.T, cfg *config.Config, opts ...wiring.Option) *wiring.Container {
	t.Helper()
	c, err := wiring.Build(context.Background(), cfg, testutil.DiscardLogger(), opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestContainerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, t.TempDir())

	c := start(t, cfg)
	assert.True(t, c.Health(ctx).Ready)
	require.NoError(t, c.Start(ctx), "second start is a no-op")

	require.NoError(t, c.Ledger.SetConsent(ctx, domain.ConsentDataStorage, true))
	require.NoError(t, c.Credentials.SaveCredential(ctx, "deepl", "sk-1"))
	require.NoError(t, c.Cases.SaveCase(ctx, domain.Conversation{CaseID: "c1", Title: "Intake"}))
	before := len(c.Ledger.Entries())
	require.NoError(t, c.Stop(ctx))
	assert.False(t, c.Health(ctx).Ready)

	c2 := start(t, cfg)
	t.Cleanup(func() { _ = c2.Stop(ctx) })

	got, found, err := c2.Credentials.GetCredential(ctx, "deepl")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sk-1", got)

	conv, found, err := c2.Cases.GetCase(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Intake", conv.Title)

	assert.True(t, c2.Ledger.HasConsent(domain.ConsentDataStorage))
	assert.GreaterOrEqual(t, len(c2.Ledger.Entries()), before)
}

func TestUnreachableTierBFallsBackToFileTier(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, t.TempDir())
	tierB := testutil.NewFaultyBackend("tier-b", persistence.NewMemoryStorage())
	tierB.FailAll(true)

	c := start(t, cfg, wiring.WithTierB(tierB))
	t.Cleanup(func() { _ = c.Stop(ctx) })

	for _, d := range domain.Domains {
		h, err := c.Vault.GetKey(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, constants.BackendFile, h.Source)
	}
	require.NoError(t, c.Credentials.SaveCredential(ctx, "deepl", "sk-1"))
}

func TestReachableTierBHoldsKeys(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, t.TempDir())
	tierB := persistence.NewMemoryStorage()

	c := start(t, cfg, wiring.WithTierB(tierB))
	t.Cleanup(func() { _ = c.Stop(ctx) })

	h, err := c.Vault.GetKey(ctx, domain.DomainCredentials)
	require.NoError(t, err)
	assert.Equal(t, constants.BackendMemory, h.Source)

	keys, err := tierB.List(ctx, constants.VaultKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, len(domain.Domains))
}

func TestArchiveReceivesLedgerEntries(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, t.TempDir())
	archive := &memoryArchive{}

	c := start(t, cfg, wiring.WithArchive(archive))
	require.NoError(t, c.Credentials.SaveCredential(ctx, "deepl", "sk-1"))
	require.NoError(t, c.Stop(ctx))

	assert.Positive(t, archive.len())
}

func TestRepeatedFailuresNotifyHost(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, t.TempDir())

	c := start(t, cfg)
	t.Cleanup(func() { _ = c.Stop(ctx) })

	for i := 0; i < 6; i++ {
		err := c.Cases.SaveCase(ctx, domain.Conversation{CaseID: "c1"})
		require.Error(t, err)
	}

	select {
	case ev := <-c.Notifier.Events():
		assert.Equal(t, domain.BreachMultipleFailedAttempts, ev.Breach.Type)
	case <-time.After(time.Second):
		t.Fatal("no breach notification delivered")
	}
	require.Len(t, c.Monitor.Breaches(), 1)
}

func TestStopWithoutStart(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())
	c, err := wiring.Build(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.False(t, c.Health(context.Background()).Ready)
	assert.NoError(t, c.Stop(context.Background()))
}
