// Package records stores encrypted records under versioned envelopes. Every
// operation is mirrored into the compliance ledger.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/validation"
	"github.com/spounge-ai/medvault/pkg/memory"
	"github.com/spounge-ai/medvault/pkg/patterns/batch"
)

// KeyVault is the part of the vault the store encrypts through.
type KeyVault interface {
	Seal(ctx context.Context, d domain.Domain, plaintext, aad []byte) (nonce, ciphertext []byte, err error)
	Open(ctx context.Context, d domain.Domain, nonce, ciphertext, aad []byte) ([]byte, error)
}

// Ledger is the part of the compliance ledger the store consults and reports to.
type Ledger interface {
	domain.AuditSink
	HasConsent(flag domain.ConsentFlag) bool
	Privacy() domain.PrivacySettings
}

type Options struct {
	Backend   domain.Backend
	Vault     KeyVault
	Ledger    Ledger
	Validator *validation.RecordValidator
	// MigrationConcurrency bounds the parallel writes of MigrateLegacy.
	MigrationConcurrency int
	Clock                func() time.Time
	Logger               *slog.Logger
}

type Store struct {
	backend     domain.Backend
	vault       KeyVault
	ledger      Ledger
	validator   *validation.RecordValidator
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// MigrationReport counts the outcome of a legacy migration.
type MigrationReport struct {
	Migrated int
	Failed   int
}

// sealedPayload is the plaintext layout inside an envelope.
type sealedPayload struct {
	Kind domain.RecordKind `json:"kind"`
	Data json.RawMessage   `json:"data"`
}

func New(opts Options) (*Store, error) {
	if opts.Backend == nil || opts.Vault == nil || opts.Ledger == nil {
		return nil, errors.New("record store needs a backend, a vault and a ledger")
	}
	if opts.Validator == nil {
		v, err := validation.NewRecordValidator()
		if err != nil {
			return nil, err
		}
		opts.Validator = v
	}
	if opts.MigrationConcurrency <= 0 {
		opts.MigrationConcurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		backend:     opts.Backend,
		vault:       opts.Vault,
		ledger:      opts.Ledger,
		validator:   opts.Validator,
		concurrency: opts.MigrationConcurrency,
		now:         opts.Clock,
		logger:      opts.Logger,
	}, nil
}

func storageKey(name string) string {
	return constants.RecordPrefix + name
}

// Put encrypts payload under its domain key and writes a fresh envelope.
func (s *Store) Put(ctx context.Context, name string, payload domain.Payload) error {
	if err := s.validator.ValidateName(name); err != nil {
		err = fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		s.fail(ctx, "record_store", name, "", domain.SeverityMedium, err)
		return err
	}
	if err := s.validator.ValidatePayload(payload); err != nil {
		err = fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		s.fail(ctx, "record_store", name, "", domain.SeverityMedium, err)
		return err
	}

	kind := payload.Kind()
	d := kind.Domain()
	if d == domain.DomainMedical && !s.ledger.HasConsent(domain.ConsentDataStorage) {
		s.fail(ctx, "record_store", name, kind, domain.SeverityMedium, apperrors.ErrConsentDenied)
		return fmt.Errorf("%w: %s consent required to store %s records", apperrors.ErrConsentDenied, domain.ConsentDataStorage, kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	plaintext, err := json.Marshal(sealedPayload{Kind: kind, Data: data})
	memory.SecureZeroBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	defer memory.SecureZeroBytes(plaintext)

	env := domain.Envelope{
		CreatedAt:     s.now().UTC(),
		FormatVersion: domain.EnvelopeFormatVersion,
		RecordKind:    kind,
	}
	env.Nonce, env.Ciphertext, err = s.vault.Seal(ctx, d, plaintext, env.AAD(name))
	if err != nil {
		s.fail(ctx, "record_store", name, kind, domain.SeverityHigh, err)
		return err
	}

	blob, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := s.backend.Put(ctx, storageKey(name), blob); err != nil {
		err = fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		s.fail(ctx, "record_store", name, kind, domain.SeverityHigh, err)
		return err
	}

	s.ledger.LogEntry(ctx, "record_store", recordRef(name, kind), domain.EntryOptions{
		DataKind: kind,
		Severity: domain.SeverityLow,
		Success:  true,
		Details:  map[string]any{"recordName": name},
	})
	return nil
}

// Get decrypts the named record. A missing record and a record that cannot be
// authenticated both report found=false; the latter is deleted first.
func (s *Store) Get(ctx context.Context, name string) (domain.Record, bool, error) {
	if err := s.validator.ValidateName(name); err != nil {
		return domain.Record{}, false, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	rec, found, err := s.get(ctx, name)
	if err != nil {
		s.fail(ctx, "record_access", name, "", domain.SeverityMedium, err)
		return domain.Record{}, false, err
	}

	if s.ledger.Privacy().AccessMonitoring {
		s.ledger.LogEntry(ctx, "record_access", recordRef(name, rec.Kind), domain.EntryOptions{
			DataKind: rec.Kind,
			Severity: domain.SeverityLow,
			Success:  true,
			Details:  map[string]any{"recordName": name, "found": found},
		})
	}
	return rec, found, nil
}

func (s *Store) get(ctx context.Context, name string) (domain.Record, bool, error) {
	blob, err := s.backend.Get(ctx, storageKey(name))
	if err != nil {
		if persistence.IsNotFound(err) {
			return domain.Record{}, false, nil
		}
		return domain.Record{}, false, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	rec, err := s.decode(ctx, name, blob)
	if err != nil {
		if errors.Is(err, apperrors.ErrKeyUnavailable) {
			return domain.Record{}, false, err
		}
		s.purge(ctx, name, err)
		return domain.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) decode(ctx context.Context, name string, blob []byte) (domain.Record, error) {
	var env domain.Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return domain.Record{}, fmt.Errorf("%w: malformed envelope", apperrors.ErrCorruptCiphertext)
	}
	if env.FormatVersion != domain.EnvelopeFormatVersion {
		return domain.Record{}, fmt.Errorf("%w: envelope version %d", apperrors.ErrUnsupportedFormat, env.FormatVersion)
	}
	kind, err := domain.ParseRecordKind(string(env.RecordKind))
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", apperrors.ErrCorruptCiphertext, err)
	}

	plaintext, err := s.vault.Open(ctx, kind.Domain(), env.Nonce, env.Ciphertext, env.AAD(name))
	if err != nil {
		return domain.Record{}, err
	}
	defer memory.SecureZeroBytes(plaintext)

	var sp sealedPayload
	if err := json.Unmarshal(plaintext, &sp); err != nil {
		return domain.Record{}, fmt.Errorf("%w: malformed plaintext", apperrors.ErrCorruptCiphertext)
	}
	if sp.Kind != kind {
		return domain.Record{}, fmt.Errorf("%w: payload kind %q under %q envelope", apperrors.ErrCorruptCiphertext, sp.Kind, kind)
	}
	payload, err := domain.DecodePayload(kind, sp.Data)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", apperrors.ErrCorruptCiphertext, err)
	}

	return domain.Record{Name: name, Kind: kind, CreatedAt: env.CreatedAt, Payload: payload}, nil
}

func (s *Store) purge(ctx context.Context, name string, cause error) {
	s.logger.WarnContext(ctx, "discarding unreadable record", "record", name, "error", cause)
	if err := s.backend.Delete(ctx, storageKey(name)); err != nil && !persistence.IsNotFound(err) {
		s.logger.ErrorContext(ctx, "failed to delete unreadable record", "record", name, "error", err)
	}
	s.ledger.LogEntry(ctx, "record_purged", recordRef(name, ""), domain.EntryOptions{
		Severity:     domain.SeverityHigh,
		Success:      false,
		ErrorMessage: "record could not be authenticated and was discarded",
		Details:      map[string]any{"recordName": name},
	})
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.validator.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := s.backend.Delete(ctx, storageKey(name)); err != nil && !persistence.IsNotFound(err) {
		err = fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		s.fail(ctx, "record_delete", name, "", domain.SeverityMedium, err)
		return err
	}
	s.ledger.LogEntry(ctx, "record_delete", recordRef(name, ""), domain.EntryOptions{
		Severity: domain.SeverityMedium,
		Success:  true,
		Details:  map[string]any{"recordName": name},
	})
	return nil
}

// List returns the names of every stored record, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.list(ctx)
	if err != nil {
		s.fail(ctx, "record_list", "", "", domain.SeverityMedium, err)
		return nil, err
	}
	if s.ledger.Privacy().AccessMonitoring {
		s.ledger.LogEntry(ctx, "record_list", map[string]any{"count": len(names)}, domain.EntryOptions{
			Severity: domain.SeverityLow,
			Success:  true,
			Details:  map[string]any{"count": len(names)},
		})
	}
	return names, nil
}

func (s *Store) list(ctx context.Context) ([]string, error) {
	keys, err := s.backend.List(ctx, constants.RecordPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, constants.RecordPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// PurgeDomain deletes every record protected by the domain key, plus any record
// whose envelope can no longer be read. It does not decrypt.
func (s *Store) PurgeDomain(ctx context.Context, d domain.Domain) (int, error) {
	names, err := s.list(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, name := range names {
		blob, err := s.backend.Get(ctx, storageKey(name))
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}
			return purged, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}

		var env domain.Envelope
		if err := json.Unmarshal(blob, &env); err == nil && env.RecordKind.Domain() != d {
			continue
		}
		if err := s.backend.Delete(ctx, storageKey(name)); err != nil && !persistence.IsNotFound(err) {
			return purged, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		purged++
	}

	s.ledger.LogEntry(ctx, "record_purged", map[string]any{"domain": d, "count": purged}, domain.EntryOptions{
		Severity: domain.SeverityHigh,
		Success:  true,
		Details:  map[string]any{"domain": d.String(), "count": purged},
	})
	return purged, nil
}

// ExportDocuments decrypts every medical-domain record. Records that fail to
// authenticate are purged and left out.
func (s *Store) ExportDocuments(ctx context.Context) ([]domain.Record, error) {
	names, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	var docs []domain.Record
	for _, name := range names {
		rec, found, err := s.get(ctx, name)
		if err != nil {
			return nil, err
		}
		if found && rec.Kind.Domain() == domain.DomainMedical {
			docs = append(docs, rec)
		}
	}
	return docs, nil
}

// MigrateLegacy moves a plaintext {name: secret} blob into encrypted credential
// records. The blob is removed once at least one secret made it across, or
// immediately when it cannot be parsed.
func (s *Store) MigrateLegacy(ctx context.Context, legacyName string) (MigrationReport, error) {
	blob, err := s.backend.Get(ctx, legacyName)
	if err != nil {
		if persistence.IsNotFound(err) {
			return MigrationReport{}, nil
		}
		return MigrationReport{}, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	defer memory.SecureZeroBytes(blob)

	var secrets map[string]string
	if err := json.Unmarshal(blob, &secrets); err != nil || secrets == nil {
		s.logger.WarnContext(ctx, "legacy secret blob is malformed, deleting it", "blob", legacyName)
		if err := s.backend.Delete(ctx, legacyName); err != nil && !persistence.IsNotFound(err) {
			s.logger.ErrorContext(ctx, "failed to delete malformed legacy blob", "blob", legacyName, "error", err)
		}
		s.fail(ctx, "legacy_migration", legacyName, domain.KindCredential, domain.SeverityMedium, apperrors.ErrLegacyMigrationParse)
		return MigrationReport{}, apperrors.ErrLegacyMigrationParse
	}
	if len(secrets) == 0 {
		return MigrationReport{}, nil
	}

	type item struct{ name, value string }
	items := make([]item, 0, len(secrets))
	for name, value := range secrets {
		items = append(items, item{name: name, value: value})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })

	bp := batch.BatchProcessor[item, struct{}]{
		MaxConcurrency: s.concurrency,
		Validate: func(it item) error {
			return s.validator.ValidateName(it.name)
		},
		Process: func(ctx context.Context, it item) (struct{}, error) {
			return struct{}{}, s.Put(ctx, it.name, domain.Credential{Provider: it.name, Value: it.value})
		},
	}
	res, err := bp.ProcessBatch(ctx, items, true)
	if err != nil {
		return MigrationReport{}, err
	}

	report := MigrationReport{Migrated: res.Succeeded()}
	report.Failed = len(items) - report.Migrated
	for i, it := range res.Items {
		if it.Error != nil {
			s.logger.WarnContext(ctx, "legacy secret not migrated", "name", items[i].name, "error", it.Error)
		}
	}

	if report.Migrated > 0 {
		if err := s.backend.Delete(ctx, legacyName); err != nil && !persistence.IsNotFound(err) {
			s.logger.ErrorContext(ctx, "failed to delete migrated legacy blob", "blob", legacyName, "error", err)
		}
	}

	s.ledger.LogEntry(ctx, "legacy_migration", map[string]any{"blob": legacyName, "migrated": report.Migrated}, domain.EntryOptions{
		DataKind: domain.KindCredential,
		Severity: domain.SeverityMedium,
		Success:  report.Failed == 0,
		Details:  map[string]any{"migrated": report.Migrated, "failed": report.Failed},
	})
	return report, nil
}

func (s *Store) fail(ctx context.Context, action, name string, kind domain.RecordKind, sev domain.Severity, err error) {
	details := map[string]any{}
	if name != "" {
		details["recordName"] = name
	}
	s.ledger.LogEntry(ctx, action, recordRef(name, kind), domain.EntryOptions{
		DataKind:     kind,
		Severity:     sev,
		Success:      false,
		ErrorMessage: apperrors.PublicMessage(err),
		Details:      details,
	})
}

// recordRef is what gets hashed into an audit entry: the record's identity,
// never its contents.
func recordRef(name string, kind domain.RecordKind) map[string]any {
	return map[string]any{"recordName": name, "kind": kind}
}
