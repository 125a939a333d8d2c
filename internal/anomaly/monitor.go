// Package anomaly evaluates the trailing window of the audit ledger after each
// new entry and records breaches. Detection is advisory: it never blocks or
// undoes the operation that triggered it.
package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
)

const (
	DefaultWindow           = time.Hour
	DefaultFailureThreshold = 5
	DefaultAccessThreshold  = 50

	ActionBreachDetected = "security_breach_detected"
	ActionBreachResolved = "security_breach_resolved"
)

// Ledger is the view of the compliance ledger the monitor reads and reports to.
type Ledger interface {
	domain.AuditSink
	EntriesSince(t time.Time) []domain.AuditEntry
	Privacy() domain.PrivacySettings
}

type Notifier interface {
	Notify(ctx context.Context, ev domain.BreachEvent) bool
}

type Options struct {
	Ledger Ledger
	// Backend persists the breach list.
	Backend  domain.Backend
	Notifier Notifier
	Config   config.MonitorConfig
	Logger   *slog.Logger
}

type Monitor struct {
	ledger           Ledger
	backend          domain.Backend
	notifier         Notifier
	window           time.Duration
	failureThreshold int
	accessThreshold  int
	logger           *slog.Logger

	mu       sync.Mutex
	breaches []domain.BreachRecord
}

var _ domain.EntryObserver = (*Monitor)(nil)

func NewMonitor(opts Options) (*Monitor, error) {
	if opts.Ledger == nil || opts.Backend == nil {
		return nil, errors.New("anomaly monitor needs a ledger and a backend")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.AccessThreshold <= 0 {
		cfg.AccessThreshold = DefaultAccessThreshold
	}
	return &Monitor{
		ledger:           opts.Ledger,
		backend:          opts.Backend,
		notifier:         opts.Notifier,
		window:           cfg.Window,
		failureThreshold: cfg.FailureThreshold,
		accessThreshold:  cfg.AccessThreshold,
		logger:           opts.Logger,
	}, nil
}

// Load restores the persisted breach list.
func (m *Monitor) Load(ctx context.Context) error {
	data, err := m.backend.Get(ctx, constants.BreachesKey)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	var breaches []domain.BreachRecord
	if err := json.Unmarshal(data, &breaches); err != nil {
		m.logger.WarnContext(ctx, "persisted breach list is malformed, starting empty", "error", err)
		return nil
	}

	m.mu.Lock()
	m.breaches = breaches
	m.mu.Unlock()
	return nil
}

// OnEntry evaluates the window ending at entry. Exempt entries are never
// evaluated, which keeps breach announcements from re-triggering the rules.
//
// The failure and access rules fire once per burst: while an unresolved breach
// of the same type has a timestamp inside the window, further qualifying
// entries raise nothing new. Resolving the breach, or letting it age out of the
// window, re-arms the rule. Critical actions always raise a breach.
func (m *Monitor) OnEntry(ctx context.Context, entry domain.AuditEntry) {
	if entry.Exempt || !m.ledger.Privacy().BreachDetection {
		return
	}

	from := entry.Timestamp.Add(-m.window)
	failures, accesses := 0, 0
	for _, e := range m.ledger.EntriesSince(from) {
		if e.Exempt || e.Timestamp.After(entry.Timestamp) {
			continue
		}
		if !e.Success {
			failures++
		}
		if isAccess(e.Action) {
			accesses++
		}
	}

	m.mu.Lock()
	var created []domain.BreachRecord
	if failures > m.failureThreshold && !m.hasOpenLocked(domain.BreachMultipleFailedAttempts, from) {
		created = append(created, m.recordLocked(domain.BreachMultipleFailedAttempts, entry, map[string]any{
			"failures":  failures,
			"threshold": m.failureThreshold,
			"window":    m.window.String(),
		}))
	}
	if accesses > m.accessThreshold && !m.hasOpenLocked(domain.BreachUnusualAccessPattern, from) {
		created = append(created, m.recordLocked(domain.BreachUnusualAccessPattern, entry, map[string]any{
			"accesses":  accesses,
			"threshold": m.accessThreshold,
			"window":    m.window.String(),
		}))
	}
	if entry.Severity == domain.SeverityCritical {
		created = append(created, m.recordLocked(domain.BreachCriticalAction, entry, map[string]any{
			"action": entry.Action,
		}))
	}
	if len(created) > 0 {
		m.persistLocked(ctx)
	}
	m.mu.Unlock()

	for _, b := range created {
		m.announce(ctx, b)
	}
}

func isAccess(action string) bool {
	a := strings.ToLower(action)
	return strings.Contains(a, "access") || strings.Contains(a, "view")
}

func (m *Monitor) hasOpenLocked(t domain.BreachType, from time.Time) bool {
	for _, b := range m.breaches {
		if b.Type == t && !b.Resolved && !b.Timestamp.Before(from) {
			return true
		}
	}
	return false
}

func (m *Monitor) recordLocked(t domain.BreachType, trigger domain.AuditEntry, details map[string]any) domain.BreachRecord {
	details["triggerAuditId"] = trigger.ID
	b := domain.BreachRecord{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: trigger.Timestamp,
		Details:   details,
	}
	m.breaches = append(m.breaches, b)
	return b
}

func (m *Monitor) persistLocked(ctx context.Context) {
	data, err := json.Marshal(m.breaches)
	if err == nil {
		err = m.backend.Put(ctx, constants.BreachesKey, data)
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to persist breach list", "error", err)
	}
}

func (m *Monitor) announce(ctx context.Context, b domain.BreachRecord) {
	m.logger.WarnContext(ctx, "security breach detected", "breach_id", b.ID, "type", b.Type)

	m.ledger.LogEntry(ctx, ActionBreachDetected, b, domain.EntryOptions{
		Severity: domain.SeverityCritical,
		Success:  true,
		Exempt:   true,
		Details:  map[string]any{"breachId": b.ID, "breachType": string(b.Type)},
	})

	if m.notifier != nil {
		m.notifier.Notify(ctx, domain.BreachEvent{Breach: b, Message: message(b.Type)})
	}
}

func message(t domain.BreachType) string {
	switch t {
	case domain.BreachMultipleFailedAttempts:
		return "Repeated failed operations were detected."
	case domain.BreachUnusualAccessPattern:
		return "An unusual volume of record access was detected."
	case domain.BreachCriticalAction:
		return "A critical action was performed."
	default:
		return "A security event was detected."
	}
}

// Breaches returns a copy of the breach list, oldest first.
func (m *Monitor) Breaches() []domain.BreachRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BreachRecord(nil), m.breaches...)
}

// ResolveBreach marks a breach acknowledged. It is the only mutation a breach
// record ever sees.
func (m *Monitor) ResolveBreach(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := -1
	for i := range m.breaches {
		if m.breaches[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("breach %q: %w", id, apperrors.ErrNotFound)
	}
	already := m.breaches[idx].Resolved
	m.breaches[idx].Resolved = true
	if !already {
		m.persistLocked(ctx)
	}
	m.mu.Unlock()

	if !already {
		m.ledger.LogEntry(ctx, ActionBreachResolved, map[string]any{"breachId": id}, domain.EntryOptions{
			Severity: domain.SeverityMedium,
			Success:  true,
			Exempt:   true,
			Details:  map[string]any{"breachId": id},
		})
	}
	return nil
}
