package domain

import (
	"context"
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// AuditEntry is one append-only ledger record. The raw payload is never stored,
// only its hash.
type AuditEntry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	PayloadHash  string         `json:"payloadHash,omitempty"`
	SessionID    string         `json:"sessionId"`
	DataKind     RecordKind     `json:"dataKind,omitempty"`
	Severity     Severity       `json:"severity"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Exempt       bool           `json:"exempt,omitempty"`
}

// EntryOptions carries the optional attributes of LogEntry.
type EntryOptions struct {
	DataKind     RecordKind
	Severity     Severity
	Details      map[string]any
	Success      bool
	ErrorMessage string
	// Exempt marks system-generated entries that anomaly rules must skip.
	Exempt bool
}

// AuditSink is the slice of the ledger that record operations mirror into.
type AuditSink interface {
	LogEntry(ctx context.Context, action string, payload any, opts EntryOptions)
}

// EntryObserver is handed every new ledger entry synchronously.
type EntryObserver interface {
	OnEntry(ctx context.Context, entry AuditEntry)
}

// AuditArchive stores ledger entries beyond the in-memory ring buffer.
type AuditArchive interface {
	CreateAuditEntriesBatch(ctx context.Context, entries []AuditEntry) error
	GetAuditHistory(ctx context.Context, action string, limit int) ([]AuditEntry, error)
}
