package compliance_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/spounge-ai/medvault/internal/compliance"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/validation"
	"github.com/spounge-ai/medvault/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recorder) Emit(_ context.Context, e domain.AuditEntry) { r.add(e) }
func (r *recorder) Enqueue(e domain.AuditEntry)                 { r.add(e) }

func (r *recorder) add(e domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type fixture struct {
	backend *testutil.FaultyBackend
	clock   *clock
	ledger  *compliance.Ledger
}

func newFixture(t *testing.T, mutate ...func(*compliance.Options)) *fixture {
	t.Helper()
	f := &fixture{
		backend: testutil.NewFaultyBackend("tier-a", persistence.NewMemoryStorage()),
		clock:   &clock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)},
	}
	opts := compliance.Options{
		Backend: f.backend,
		ActorID: "tester",
		Clock:   f.clock.Now,
		Logger:  testutil.DiscardLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	l, err := compliance.NewLedger(opts)
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	f.ledger = l
	return f
}

func TestConsentStartsOffAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, flag := range []domain.ConsentFlag{
		domain.ConsentDataCollection, domain.ConsentDataStorage, domain.ConsentDataSharing, domain.ConsentAnalytics,
	} {
		assert.False(t, f.ledger.HasConsent(flag), flag)
	}

	require.NoError(t, f.ledger.SetConsent(ctx, domain.ConsentDataStorage, true))
	assert.True(t, f.ledger.HasConsent(domain.ConsentDataStorage))
	assert.Equal(t, f.clock.Now(), f.ledger.Consent().LastUpdated)

	reloaded, err := compliance.NewLedger(compliance.Options{Backend: f.backend, Logger: testutil.DiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.HasConsent(domain.ConsentDataStorage))
	assert.False(t, reloaded.HasConsent(domain.ConsentDataSharing))

	entries := f.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "consent_updated", entries[0].Action)
}

func TestSetConsentRejectsUnknownFlagAndStorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.ledger.SetConsent(ctx, "everything", true), apperrors.ErrInvalidInput)

	f.backend.FailPut.Store(true)
	err := f.ledger.SetConsent(ctx, domain.ConsentAnalytics, true)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.False(t, f.ledger.HasConsent(domain.ConsentAnalytics))
}

func TestUpdatePrivacy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assert.Equal(t, domain.DefaultPrivacySettings(), f.ledger.Privacy())

	_, err := f.ledger.UpdatePrivacy(ctx, func(p *domain.PrivacySettings) { p.MaxRetentionDays = 0 })
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 7, f.ledger.Privacy().MaxRetentionDays)

	got, err := f.ledger.UpdatePrivacy(ctx, func(p *domain.PrivacySettings) {
		p.MaxRetentionDays = 30
		p.AuditLogging = false
	})
	require.NoError(t, err)
	assert.Equal(t, 30, got.MaxRetentionDays)
	assert.False(t, f.ledger.Privacy().AuditLogging)

	entries := f.ledger.Entries()
	require.Len(t, entries, 1, "switching audit logging off is itself logged")
	assert.Equal(t, "privacy_updated", entries[0].Action)
	assert.Equal(t, false, entries[0].Details["auditLogging"])
	assert.Equal(t, 30, entries[0].Details["maxRetentionDays"])

	data, err := f.backend.Get(ctx, constants.PrivacyKey)
	require.NoError(t, err)
	var persisted domain.PrivacySettings
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, got, persisted)
}

func TestLogEntryNoOpWithoutAuditLogging(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, func(o *compliance.Options) {
		o.Privacy = domain.DefaultPrivacySettings()
		o.Privacy.AuditLogging = false
		o.Emitter = rec
	})

	f.ledger.LogEntry(ctx, "record_store", "payload", domain.EntryOptions{Success: true})
	assert.Empty(t, f.ledger.Entries())
	assert.Equal(t, 0, rec.len())
	assert.Equal(t, 0, f.backend.Calls("put"))
}

func TestLogEntryBuildsEntry(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	archive := &recorder{}
	f := newFixture(t, func(o *compliance.Options) {
		o.Emitter = rec
		o.Archiver = archive
	})

	f.ledger.LogEntry(ctx, "record_store", map[string]any{"value": "sk-secret"}, domain.EntryOptions{
		DataKind: domain.KindCredential,
		Success:  true,
		Details:  map[string]any{"recordName": "openai", "patient": map[string]any{"email": "a@b.c"}},
	})

	entries := f.ledger.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "tester", e.ActorID)
	assert.Equal(t, f.ledger.SessionID(), e.SessionID)
	assert.Equal(t, domain.SeverityLow, e.Severity, "severity defaults to low")
	assert.Len(t, e.PayloadHash, 16)
	assert.Equal(t, compliance.HashPayload(map[string]any{"value": "sk-secret"}), e.PayloadHash)
	assert.Equal(t, "openai", e.Details["recordName"])
	assert.Equal(t, compliance.RedactionMarker, e.Details["patient"].(map[string]any)["email"])
	assert.Equal(t, 1, rec.len())
	assert.Equal(t, 1, archive.len())

	data, err := f.backend.Get(ctx, constants.AuditLogKey)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "a@b.c")
}

func TestLedgerCapKeepsNewest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 1500; i++ {
		f.ledger.LogEntry(ctx, "record_access", nil, domain.EntryOptions{Success: true, Details: map[string]any{"seq": i}})
	}

	entries := f.ledger.Entries()
	require.Len(t, entries, compliance.DefaultCap)
	for i, e := range entries {
		require.Equal(t, 500+i, e.Details["seq"])
	}
}

func TestLedgerPersistFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.FailPut.Store(true)

	f.ledger.LogEntry(ctx, "record_access", nil, domain.EntryOptions{Success: true})
	assert.Len(t, f.ledger.Entries(), 1)
}

func TestLoadTrimsAndRestoresLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		f.ledger.LogEntry(ctx, "record_access", nil, domain.EntryOptions{Success: true, Details: map[string]any{"seq": i}})
	}

	small, err := compliance.NewLedger(compliance.Options{Backend: f.backend, Cap: 5, Logger: testutil.DiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, small.Load(ctx))
	entries := small.Entries()
	require.Len(t, entries, 5)
	assert.EqualValues(t, 19, entries[4].Details["seq"])
}

func TestLoadDiscardsMalformedState(t *testing.T) {
	ctx := context.Background()
	backend := persistence.NewMemoryStorage()
	require.NoError(t, backend.Put(ctx, constants.ConsentKey, []byte("garbage")))
	require.NoError(t, backend.Put(ctx, constants.PrivacyKey, []byte(`{"maxRetentionDays":0}`)))

	l, err := compliance.NewLedger(compliance.Options{Backend: backend, Logger: testutil.DiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, l.Load(ctx))
	assert.Equal(t, domain.ConsentSettings{}, l.Consent())
	assert.Equal(t, domain.DefaultPrivacySettings(), l.Privacy())
}

type readingObserver struct {
	ledger *compliance.Ledger
	seen   []int
}

func (o *readingObserver) OnEntry(_ context.Context, _ domain.AuditEntry) {
	o.seen = append(o.seen, len(o.ledger.Entries()))
}

func TestObserversRunAfterAppendOutsideLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	obs := &readingObserver{ledger: f.ledger}
	f.ledger.Observe(obs)

	f.ledger.LogEntry(ctx, "a", nil, domain.EntryOptions{Success: true})
	f.ledger.LogEntry(ctx, "b", nil, domain.EntryOptions{Success: true})
	assert.Equal(t, []int{1, 2}, obs.seen)
}

func TestEntriesSince(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.ledger.LogEntry(ctx, "old", nil, domain.EntryOptions{Success: true})
	f.clock.Advance(2 * time.Hour)
	mark := f.clock.Now()
	f.ledger.LogEntry(ctx, "new", nil, domain.EntryOptions{Success: true})

	got := f.ledger.EntriesSince(mark)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Action)
}

func TestQueryHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.ledger.LogEntry(ctx, "record_access", nil, domain.EntryOptions{Success: true, Details: map[string]any{"seq": i}})
		f.ledger.LogEntry(ctx, "record_store", nil, domain.EntryOptions{Success: true})
		f.clock.Advance(time.Minute)
	}

	got, err := f.ledger.QueryHistory(ctx, validation.AuditQuery{Action: "record_access", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Details["seq"], "newest first")
	assert.Equal(t, 3, got[1].Details["seq"])

	_, err = f.ledger.QueryHistory(ctx, validation.AuditQuery{Limit: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
