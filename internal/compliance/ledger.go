// Package compliance owns consent, privacy settings and the bounded audit
// ledger. Everything sensitive the process does is recorded here.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/validation"
	pkgvalidator "github.com/spounge-ai/medvault/pkg/validator"
)

const DefaultCap = 1000

// Emitter writes an entry to the structured log.
type Emitter interface {
	Emit(ctx context.Context, entry domain.AuditEntry)
}

// Archiver copies an entry to long-term storage without blocking.
type Archiver interface {
	Enqueue(entry domain.AuditEntry)
}

// ExportSource contributes decrypted medical documents to an export.
type ExportSource interface {
	ExportDocuments(ctx context.Context) ([]domain.Record, error)
}

type Options struct {
	// Backend is the Tier A store for settings, the ledger and snapshots.
	Backend domain.Backend
	Cap     int
	ActorID string
	// Privacy is used until settings have been persisted.
	Privacy  domain.PrivacySettings
	Emitter  Emitter
	Archiver Archiver
	// History serves audit queries beyond the in-memory ledger.
	History domain.AuditArchive
	// ExportSink receives a copy of every export when set.
	ExportSink   domain.Backend
	ExportPrefix string
	Clock        func() time.Time
	Logger       *slog.Logger
}

type Ledger struct {
	backend      domain.Backend
	cap          int
	actorID      string
	sessionID    string
	emitter      Emitter
	archiver     Archiver
	history      domain.AuditArchive
	exportSink   domain.Backend
	exportPrefix string
	validate     *validator.Validate
	queries      *validation.QueryValidator
	now          func() time.Time
	logger       *slog.Logger

	mu        sync.RWMutex
	consent   domain.ConsentSettings
	privacy   domain.PrivacySettings
	entries   []domain.AuditEntry
	observers []domain.EntryObserver
	sources   []ExportSource
}

func NewLedger(opts Options) (*Ledger, error) {
	if opts.Backend == nil {
		return nil, errors.New("ledger needs a backend")
	}
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	if opts.ActorID == "" {
		opts.ActorID = "local-user"
	}
	if opts.Privacy == (domain.PrivacySettings{}) {
		opts.Privacy = domain.DefaultPrivacySettings()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	v := validator.New()
	if err := pkgvalidator.RegisterCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}
	if err := v.Struct(opts.Privacy); err != nil {
		return nil, fmt.Errorf("%w: privacy defaults: %v", apperrors.ErrInvalidInput, err)
	}

	return &Ledger{
		backend:      opts.Backend,
		cap:          opts.Cap,
		actorID:      opts.ActorID,
		sessionID:    uuid.NewString(),
		emitter:      opts.Emitter,
		archiver:     opts.Archiver,
		history:      opts.History,
		exportSink:   opts.ExportSink,
		exportPrefix: opts.ExportPrefix,
		validate:     v,
		queries:      validation.NewQueryValidator(),
		now:          opts.Clock,
		logger:       opts.Logger,
		privacy:      opts.Privacy,
	}, nil
}

// Load restores consent, privacy settings and the ledger from the backend.
// Missing state keeps the defaults; unreadable state is logged and replaced.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var consent domain.ConsentSettings
	if ok, err := l.readJSON(ctx, constants.ConsentKey, &consent); err != nil {
		return err
	} else if ok {
		l.consent = consent
	}

	var privacy domain.PrivacySettings
	if ok, err := l.readJSON(ctx, constants.PrivacyKey, &privacy); err != nil {
		return err
	} else if ok {
		if err := l.validate.Struct(privacy); err != nil {
			l.logger.WarnContext(ctx, "persisted privacy settings are invalid, keeping defaults", "error", err)
		} else {
			l.privacy = privacy
		}
	}

	var entries []domain.AuditEntry
	if ok, err := l.readJSON(ctx, constants.AuditLogKey, &entries); err != nil {
		return err
	} else if ok {
		if len(entries) > l.cap {
			entries = entries[len(entries)-l.cap:]
		}
		l.entries = entries
	}

	l.logger.InfoContext(ctx, "compliance ledger loaded", "entries", len(l.entries), "session_id", l.sessionID)
	return nil
}

func (l *Ledger) readJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := l.backend.Get(ctx, key)
	if err != nil {
		if persistence.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		l.logger.WarnContext(ctx, "persisted compliance state is malformed, discarding", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (l *Ledger) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := l.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

// Observe registers an observer that receives every new entry after it is
// appended. Observers run synchronously outside the ledger lock.
func (l *Ledger) Observe(obs domain.EntryObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

// RegisterExportSource adds a provider of medical documents to ExportAll.
func (l *Ledger) RegisterExportSource(src ExportSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, src)
}

func (l *Ledger) SessionID() string { return l.sessionID }

func (l *Ledger) HasConsent(flag domain.ConsentFlag) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.consent.Has(flag)
}

func (l *Ledger) Consent() domain.ConsentSettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.consent
}

// SetConsent records an explicit user decision for one flag.
func (l *Ledger) SetConsent(ctx context.Context, flag domain.ConsentFlag, granted bool) error {
	if _, err := domain.ParseConsentFlag(string(flag)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	l.mu.Lock()
	next := l.consent
	next.Set(flag, granted)
	next.LastUpdated = l.now().UTC()
	if err := l.writeJSON(ctx, constants.ConsentKey, next); err != nil {
		l.mu.Unlock()
		return err
	}
	l.consent = next
	l.mu.Unlock()

	l.LogEntry(ctx, "consent_updated", map[string]any{"flag": flag, "granted": granted}, domain.EntryOptions{
		Severity: domain.SeverityMedium,
		Success:  true,
		Details:  map[string]any{"flag": string(flag), "granted": granted},
	})
	return nil
}

func (l *Ledger) Privacy() domain.PrivacySettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.privacy
}

// UpdatePrivacy applies fn to a copy of the settings, validates and persists
// the result, then makes it current.
func (l *Ledger) UpdatePrivacy(ctx context.Context, fn func(*domain.PrivacySettings)) (domain.PrivacySettings, error) {
	l.mu.Lock()
	next := l.privacy
	fn(&next)
	if err := l.validate.Struct(next); err != nil {
		l.mu.Unlock()
		return domain.PrivacySettings{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := l.writeJSON(ctx, constants.PrivacyKey, next); err != nil {
		l.mu.Unlock()
		return domain.PrivacySettings{}, err
	}
	prev := l.privacy
	l.mu.Unlock()

	// Logged under the previous settings so that switching audit logging off
	// is itself recorded.
	l.LogEntry(ctx, "privacy_updated", next, domain.EntryOptions{
		Severity: domain.SeverityMedium,
		Success:  true,
		Details:  privacyDiff(prev, next),
	})

	l.mu.Lock()
	l.privacy = next
	l.mu.Unlock()
	return next, nil
}

func privacyDiff(prev, next domain.PrivacySettings) map[string]any {
	diff := map[string]any{}
	if prev.MaxRetentionDays != next.MaxRetentionDays {
		diff["maxRetentionDays"] = next.MaxRetentionDays
	}
	flags := []struct {
		name       string
		prev, next bool
	}{
		{"autoDelete", prev.AutoDelete, next.AutoDelete},
		{"anonymizePII", prev.AnonymizePII, next.AnonymizePII},
		{"auditLogging", prev.AuditLogging, next.AuditLogging},
		{"breachDetection", prev.BreachDetection, next.BreachDetection},
		{"encryptionEnabled", prev.EncryptionEnabled, next.EncryptionEnabled},
		{"accessMonitoring", prev.AccessMonitoring, next.AccessMonitoring},
	}
	for _, f := range flags {
		if f.prev != f.next {
			diff[f.name] = f.next
		}
	}
	return diff
}

// LogEntry appends an audit entry. It is a no-op while audit logging is off.
// The payload itself is never stored, only its hash.
func (l *Ledger) LogEntry(ctx context.Context, action string, payload any, opts domain.EntryOptions) {
	l.mu.Lock()
	if !l.privacy.AuditLogging {
		l.mu.Unlock()
		return
	}

	severity := opts.Severity
	if severity == "" {
		severity = domain.SeverityLow
	}
	details := opts.Details
	if l.privacy.AnonymizePII && details != nil {
		details = redactMap(details)
	}

	entry := domain.AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    l.now().UTC(),
		ActorID:      l.actorID,
		Action:       action,
		PayloadHash:  HashPayload(payload),
		SessionID:    l.sessionID,
		DataKind:     opts.DataKind,
		Severity:     severity,
		Success:      opts.Success,
		ErrorMessage: opts.ErrorMessage,
		Details:      details,
		Exempt:       opts.Exempt,
	}

	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.cap; over > 0 {
		trimmed := make([]domain.AuditEntry, l.cap)
		copy(trimmed, l.entries[over:])
		l.entries = trimmed
	}
	if err := l.writeJSON(ctx, constants.AuditLogKey, l.entries); err != nil {
		l.logger.ErrorContext(ctx, "failed to persist audit ledger", "error", err, "action", action)
	}

	observers := append([]domain.EntryObserver(nil), l.observers...)
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.Emit(ctx, entry)
	}
	if l.archiver != nil {
		l.archiver.Enqueue(entry)
	}
	for _, obs := range observers {
		obs.OnEntry(ctx, entry)
	}
}

// HashPayload is the xxhash64 of the payload's JSON form, as hex. It
// correlates entries and is not a security boundary.
func HashPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", payload))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Entries returns a copy of the ledger, oldest first.
func (l *Ledger) Entries() []domain.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AuditEntry(nil), l.entries...)
}

// EntriesSince returns the entries with a timestamp at or after t, oldest first.
func (l *Ledger) EntriesSince(t time.Time) []domain.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range l.entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

// QueryHistory filters audit entries by action and time range, newest first.
// The archive is consulted when configured, otherwise the in-memory ledger.
func (l *Ledger) QueryHistory(ctx context.Context, q validation.AuditQuery) ([]domain.AuditEntry, error) {
	if err := l.queries.ValidateAuditQuery(&q); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	var source []domain.AuditEntry
	if l.history != nil {
		archived, err := l.history.GetAuditHistory(ctx, q.Action, validation.MaxQueryLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		source = archived
	} else {
		entries := l.Entries()
		for i := len(entries) - 1; i >= 0; i-- {
			source = append(source, entries[i])
		}
	}

	out := make([]domain.AuditEntry, 0, min(len(source), q.Limit))
	for _, e := range source {
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
