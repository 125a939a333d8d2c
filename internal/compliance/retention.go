package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
)

// StoreSnapshot keeps an anonymized copy of a conversation. It requires data
// collection consent.
func (l *Ledger) StoreSnapshot(ctx context.Context, conv domain.Conversation) (domain.Snapshot, error) {
	if !l.HasConsent(domain.ConsentDataCollection) {
		l.LogEntry(ctx, "snapshot_stored", map[string]any{"caseId": conv.CaseID}, domain.EntryOptions{
			DataKind:     domain.KindConversation,
			Severity:     domain.SeverityMedium,
			Success:      false,
			ErrorMessage: apperrors.PublicMessage(apperrors.ErrConsentDenied),
		})
		return domain.Snapshot{}, fmt.Errorf("%w: %s consent required to keep snapshots", apperrors.ErrConsentDenied, domain.ConsentDataCollection)
	}

	anon, err := l.Anonymize(conv)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{ID: uuid.NewString(), Data: anon}

	data, err := json.Marshal(snap)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := l.backend.Put(ctx, constants.SnapshotPrefix+snap.ID, data); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	l.LogEntry(ctx, "snapshot_stored", map[string]any{"snapshotId": snap.ID}, domain.EntryOptions{
		DataKind: domain.KindConversation,
		Severity: domain.SeverityLow,
		Success:  true,
		Details:  map[string]any{"snapshotId": snap.ID, "originalHash": anon.OriginalHash},
	})
	return snap, nil
}

// Snapshots returns every stored snapshot, oldest first. Unreadable ones are skipped.
func (l *Ledger) Snapshots(ctx context.Context) ([]domain.Snapshot, error) {
	keys, err := l.backend.List(ctx, constants.SnapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	snaps := make([]domain.Snapshot, 0, len(keys))
	for _, key := range keys {
		data, err := l.backend.Get(ctx, key)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			l.logger.WarnContext(ctx, "skipping malformed snapshot", "key", key, "error", err)
			continue
		}
		if snap.ID == "" {
			snap.ID = strings.TrimPrefix(key, constants.SnapshotPrefix)
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Data.Timestamp.Before(snaps[j].Data.Timestamp) })
	return snaps, nil
}

type PruneReport struct {
	Entries   int
	Snapshots int
	Cutoff    time.Time
}

// PruneExpired drops ledger entries and snapshots older than the retention
// window. It does nothing while auto delete is off.
func (l *Ledger) PruneExpired(ctx context.Context) (PruneReport, error) {
	privacy := l.Privacy()
	if !privacy.AutoDelete {
		return PruneReport{}, nil
	}
	cutoff := l.now().UTC().Add(-time.Duration(privacy.MaxRetentionDays) * 24 * time.Hour)
	report := PruneReport{Cutoff: cutoff}

	l.mu.Lock()
	kept := make([]domain.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Timestamp.Before(cutoff) {
			report.Entries++
			continue
		}
		kept = append(kept, e)
	}
	if report.Entries > 0 {
		l.entries = kept
		if err := l.writeJSON(ctx, constants.AuditLogKey, l.entries); err != nil {
			l.logger.ErrorContext(ctx, "failed to persist pruned ledger", "error", err)
		}
	}
	l.mu.Unlock()

	snaps, err := l.Snapshots(ctx)
	if err != nil {
		return report, err
	}
	for _, s := range snaps {
		if !s.Data.Timestamp.Before(cutoff) {
			continue
		}
		if err := l.backend.Delete(ctx, constants.SnapshotPrefix+s.ID); err != nil && !persistence.IsNotFound(err) {
			return report, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		report.Snapshots++
	}

	l.LogEntry(ctx, "retention_prune", map[string]any{"cutoff": cutoff}, domain.EntryOptions{
		Severity: domain.SeverityLow,
		Success:  true,
		Details:  map[string]any{"entries": report.Entries, "snapshots": report.Snapshots},
	})
	return report, nil
}

type UsageReport struct {
	GeneratedAt time.Time                 `json:"generatedAt"`
	From        time.Time                 `json:"from"`
	To          time.Time                 `json:"to"`
	Total       int                       `json:"total"`
	Failures    int                       `json:"failures"`
	ByAction    map[string]int            `json:"byAction"`
	BySeverity  map[domain.Severity]int   `json:"bySeverity"`
	ByDataKind  map[domain.RecordKind]int `json:"byDataKind"`
}

// UsageReport aggregates the ledger. It requires analytics consent.
func (l *Ledger) UsageReport(ctx context.Context) (UsageReport, error) {
	if !l.HasConsent(domain.ConsentAnalytics) {
		return UsageReport{}, fmt.Errorf("%w: %s consent required for usage reports", apperrors.ErrConsentDenied, domain.ConsentAnalytics)
	}

	entries := l.Entries()
	report := UsageReport{
		GeneratedAt: l.now().UTC(),
		ByAction:    map[string]int{},
		BySeverity:  map[domain.Severity]int{},
		ByDataKind:  map[domain.RecordKind]int{},
	}
	for i, e := range entries {
		if i == 0 {
			report.From = e.Timestamp
		}
		report.To = e.Timestamp
		report.Total++
		if !e.Success {
			report.Failures++
		}
		report.ByAction[e.Action]++
		report.BySeverity[e.Severity]++
		if e.DataKind != "" {
			report.ByDataKind[e.DataKind]++
		}
	}

	l.LogEntry(ctx, "usage_report", nil, domain.EntryOptions{Severity: domain.SeverityLow, Success: true})
	return report, nil
}
