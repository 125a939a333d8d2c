package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
)

// Logger emits ledger entries as structured log events.
type Logger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Emit writes entry as an "audit_event" record. Details are logged as given;
// the ledger has already redacted them when anonymization is on.
func (l *Logger) Emit(ctx context.Context, entry domain.AuditEntry) {
	logAttrs := []slog.Attr{
		slog.String("audit_id", entry.ID),
		slog.String("action", entry.Action),
		slog.String("actor_id", entry.ActorID),
		slog.String("session_id", entry.SessionID),
		slog.String("severity", string(entry.Severity)),
		slog.Bool("success", entry.Success),
		slog.Time("timestamp", entry.Timestamp),
		slog.String("checksum", Checksum(entry)),
	}

	if entry.PayloadHash != "" {
		logAttrs = append(logAttrs, slog.String("payload_hash", entry.PayloadHash))
	}
	if entry.DataKind != "" {
		logAttrs = append(logAttrs, slog.String("data_kind", string(entry.DataKind)))
	}
	if entry.ErrorMessage != "" {
		logAttrs = append(logAttrs, slog.String("error", entry.ErrorMessage))
	}
	if entry.Exempt {
		logAttrs = append(logAttrs, slog.Bool("exempt", true))
	}
	if len(entry.Details) > 0 {
		logAttrs = append(logAttrs, slog.Any("details", entry.Details))
	}

	l.logger.LogAttrs(ctx, levelFor(entry), "audit_event", logAttrs...)
}

func levelFor(entry domain.AuditEntry) slog.Level {
	switch entry.Severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		return slog.LevelWarn
	default:
		if !entry.Success {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
}

// Checksum fingerprints the identifying fields of an entry so a log line can
// be matched against the archived row.
func Checksum(entry domain.AuditEntry) string {
	data := map[string]interface{}{
		"id":           entry.ID,
		"timestamp":    entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"action":       entry.Action,
		"actor_id":     entry.ActorID,
		"payload_hash": entry.PayloadHash,
		"severity":     entry.Severity,
		"success":      entry.Success,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}
