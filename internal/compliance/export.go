package compliance

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"gopkg.in/yaml.v3"
)

type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatYAML ExportFormat = "yaml"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: export format %q", apperrors.ErrUnsupportedFormat, s)
	}
}

// ExportBundle is everything that leaves the boundary in an export. Audit
// entries, snapshots and documents are anonymized.
type ExportBundle struct {
	ExportedAt time.Time              `json:"exportedAt"`
	SessionID  string                 `json:"sessionId"`
	Consent    domain.ConsentSettings `json:"consent"`
	Privacy    domain.PrivacySettings `json:"privacy"`
	AuditLog   []any                  `json:"auditLog"`
	Snapshots  []domain.Snapshot      `json:"snapshots"`
	Documents  []ExportedDocument     `json:"documents"`
}

type ExportedDocument struct {
	Name      string            `json:"name"`
	Kind      domain.RecordKind `json:"kind"`
	CreatedAt time.Time         `json:"createdAt"`
	Data      any               `json:"data"`
}

type ExportResult struct {
	Format ExportFormat
	Data   []byte
	// Location is the sink key the export was uploaded to, if any.
	Location string
}

// ExportAll produces an anonymized export. It requires data sharing consent,
// checked before anything is read.
func (l *Ledger) ExportAll(ctx context.Context, format ExportFormat) (ExportResult, error) {
	if !l.HasConsent(domain.ConsentDataSharing) {
		l.LogEntry(ctx, "data_export", map[string]any{"format": format}, domain.EntryOptions{
			Severity:     domain.SeverityHigh,
			Success:      false,
			ErrorMessage: apperrors.PublicMessage(apperrors.ErrConsentDenied),
		})
		return ExportResult{}, fmt.Errorf("%w: %s consent required to export", apperrors.ErrConsentDenied, domain.ConsentDataSharing)
	}
	if _, err := ParseExportFormat(string(format)); err != nil {
		return ExportResult{}, err
	}

	bundle, err := l.buildBundle(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	data, err := encodeBundle(bundle, format)
	if err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{Format: format, Data: data}
	if l.exportSink != nil {
		key := path.Join(l.exportPrefix, fmt.Sprintf("medvault-export-%s.%s", bundle.ExportedAt.Format("20060102T150405Z"), format))
		if err := l.exportSink.Put(ctx, key, data); err != nil {
			l.logger.ErrorContext(ctx, "failed to upload export", "sink", l.exportSink.Name(), "error", err)
			return ExportResult{}, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		res.Location = key
	}

	l.LogEntry(ctx, "data_export", map[string]any{"format": format, "bytes": len(data)}, domain.EntryOptions{
		Severity: domain.SeverityHigh,
		Success:  true,
		Details: map[string]any{
			"format":    string(format),
			"documents": len(bundle.Documents),
			"snapshots": len(bundle.Snapshots),
			"entries":   len(bundle.AuditLog),
			"uploaded":  res.Location != "",
		},
	})
	return res, nil
}

func (l *Ledger) buildBundle(ctx context.Context) (ExportBundle, error) {
	l.mu.RLock()
	bundle := ExportBundle{
		ExportedAt: l.now().UTC(),
		SessionID:  l.sessionID,
		Consent:    l.consent,
		Privacy:    l.privacy,
	}
	entries := append([]domain.AuditEntry(nil), l.entries...)
	sources := append([]ExportSource(nil), l.sources...)
	l.mu.RUnlock()

	bundle.AuditLog = make([]any, 0, len(entries))
	for _, e := range entries {
		generic, err := toGeneric(e)
		if err != nil {
			return ExportBundle{}, err
		}
		bundle.AuditLog = append(bundle.AuditLog, Redact(generic))
	}

	snapshots, err := l.Snapshots(ctx)
	if err != nil {
		return ExportBundle{}, err
	}
	bundle.Snapshots = snapshots

	bundle.Documents = []ExportedDocument{}
	for _, src := range sources {
		docs, err := src.ExportDocuments(ctx)
		if err != nil {
			return ExportBundle{}, err
		}
		for _, d := range docs {
			generic, err := toGeneric(d.Payload)
			if err != nil {
				return ExportBundle{}, err
			}
			bundle.Documents = append(bundle.Documents, ExportedDocument{
				Name:      d.Name,
				Kind:      d.Kind,
				CreatedAt: d.CreatedAt,
				Data:      Redact(generic),
			})
		}
	}
	return bundle, nil
}

func encodeBundle(bundle ExportBundle, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(bundle, "", "  ")
	case FormatYAML:
		// Through the generic form so YAML keys match the JSON field names.
		generic, err := toGeneric(bundle)
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(generic)
	case FormatCSV:
		return encodeCSV(bundle)
	default:
		return nil, fmt.Errorf("%w: export format %q", apperrors.ErrUnsupportedFormat, format)
	}
}

// encodeCSV flattens the bundle to one row per leaf value:
// section, id, field path, value.
func encodeCSV(bundle ExportBundle) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"section", "id", "field", "value"}); err != nil {
		return nil, err
	}

	write := func(section, id string, v any) error {
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		var rows [][]string
		flatten("", generic, func(field, value string) {
			rows = append(rows, []string{section, id, field, value})
		})
		return w.WriteAll(rows)
	}

	if err := write("consent", "consent", bundle.Consent); err != nil {
		return nil, err
	}
	if err := write("privacy", "privacy", bundle.Privacy); err != nil {
		return nil, err
	}
	for _, e := range bundle.AuditLog {
		id := ""
		if m, ok := e.(map[string]any); ok {
			id, _ = m["id"].(string)
		}
		if err := write("audit", id, e); err != nil {
			return nil, err
		}
	}
	for _, s := range bundle.Snapshots {
		if err := write("snapshot", s.ID, s.Data); err != nil {
			return nil, err
		}
	}
	for _, d := range bundle.Documents {
		if err := write("document", d.Name, d); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv export: %w", err)
	}
	return buf.Bytes(), nil
}

func flatten(prefix string, v any, emit func(field, value string)) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(join(k), t[k], emit)
		}
	case []any:
		for i, item := range t {
			flatten(join(strconv.Itoa(i)), item, emit)
		}
	case nil:
		emit(prefix, "")
	case string:
		emit(prefix, t)
	case bool:
		emit(prefix, strconv.FormatBool(t))
	case float64:
		emit(prefix, strconv.FormatFloat(t, 'f', -1, 64))
	default:
		emit(prefix, fmt.Sprint(t))
	}
}
