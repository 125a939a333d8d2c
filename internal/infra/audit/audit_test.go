package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/audit"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, sev domain.Severity, success bool) domain.AuditEntry {
	return domain.AuditEntry{
		ID:          id,
		Timestamp:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		ActorID:     "local-user",
		Action:      "record_store",
		PayloadHash: "00ff00ff00ff00ff",
		SessionID:   "session-1",
		DataKind:    domain.KindConversation,
		Severity:    sev,
		Success:     success,
		Details:     map[string]any{"recordName": "case-1"},
	}
}

func TestEmitWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	audit.NewAuditLogger(logger).Emit(context.Background(), entry("a1", domain.SeverityLow, true))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "audit_event", got["msg"])
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "a1", got["audit_id"])
	assert.Equal(t, "conversation", got["data_kind"])
	assert.Equal(t, audit.Checksum(entry("a1", domain.SeverityLow, true)), got["checksum"])
	assert.NotContains(t, got, "error")
}

func TestEmitRaisesLevelForFailuresAndHighSeverity(t *testing.T) {
	for _, e := range []domain.AuditEntry{
		entry("a1", domain.SeverityLow, false),
		entry("a2", domain.SeverityCritical, true),
	} {
		var buf bytes.Buffer
		audit.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil))).Emit(context.Background(), e)
		assert.Contains(t, buf.String(), `"level":"WARN"`)
	}
}

func TestChecksumChangesWithContent(t *testing.T) {
	a := entry("a1", domain.SeverityLow, true)
	b := a
	b.Success = false
	assert.NotEqual(t, audit.Checksum(a), audit.Checksum(b))
	assert.Equal(t, audit.Checksum(a), audit.Checksum(a))
}

type fakeArchive struct {
	mu      sync.Mutex
	fail    int
	calls   int
	entries []domain.AuditEntry
}

func (f *fakeArchive) CreateAuditEntriesBatch(_ context.Context, entries []domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail < 0 || f.calls <= f.fail {
		return errors.New("archive down")
	}
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeArchive) GetAuditHistory(_ context.Context, _ string, _ int) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry(nil), f.entries...), nil
}

func TestArchiverFlushesOnStop(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{}
	a := audit.NewAsyncArchiver(testutil.DiscardLogger(), archive, audit.AsyncArchiverConfig{
		BatchSize:    3,
		BatchTimeout: time.Hour,
	})
	require.NoError(t, a.Start(ctx))
	assert.True(t, a.Health(ctx).Ready)

	for i := 0; i < 7; i++ {
		a.Enqueue(entry(string(rune('a'+i)), domain.SeverityLow, true))
	}
	require.NoError(t, a.Stop(ctx))

	got, err := archive.GetAuditHistory(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, int64(0), a.Dropped())
	assert.False(t, a.Health(ctx).Ready)
}

func TestArchiverRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{fail: 1}
	a := audit.NewAsyncArchiver(testutil.DiscardLogger(), archive, audit.AsyncArchiverConfig{BatchSize: 1})
	require.NoError(t, a.Start(ctx))

	a.Enqueue(entry("a1", domain.SeverityLow, true))
	require.NoError(t, a.Stop(ctx))

	got, _ := archive.GetAuditHistory(ctx, "", 0)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(0), a.Failed())
}

func TestArchiverCountsPermanentFailures(t *testing.T) {
	ctx := context.Background()
	archive := &fakeArchive{fail: -1}
	a := audit.NewAsyncArchiver(testutil.DiscardLogger(), archive, audit.AsyncArchiverConfig{BatchSize: 2, MaxRetries: 2})
	require.NoError(t, a.Start(ctx))

	a.Enqueue(entry("a1", domain.SeverityLow, true))
	a.Enqueue(entry("a2", domain.SeverityLow, true))
	require.NoError(t, a.Stop(ctx))

	assert.Equal(t, int64(2), a.Failed())
}

func TestArchiverDropsWhenFullOrStopped(t *testing.T) {
	ctx := context.Background()
	a := audit.NewAsyncArchiver(testutil.DiscardLogger(), &fakeArchive{}, audit.AsyncArchiverConfig{ChannelBufferSize: 2})

	// Not started, so nothing drains the queue.
	for i := 0; i < 5; i++ {
		a.Enqueue(entry("x", domain.SeverityLow, true))
	}
	assert.Equal(t, int64(3), a.Dropped())

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))
	a.Enqueue(entry("y", domain.SeverityLow, true))
	assert.Equal(t, int64(4), a.Dropped())
	assert.Error(t, a.Start(ctx))
}
