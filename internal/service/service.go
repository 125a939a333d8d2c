// Package service exposes the flows the host application's collaborators use:
// provider credentials and medical cases. Errors leaving this package are
// sanitized; they carry a class and a safe message, never record contents.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/records"
)

var ErrWrongRecordKind = errors.New("record holds a different kind of data")

// RecordStore is the encrypted store the services read and write through.
type RecordStore interface {
	Put(ctx context.Context, name string, payload domain.Payload) error
	Get(ctx context.Context, name string) (domain.Record, bool, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	MigrateLegacy(ctx context.Context, legacyName string) (records.MigrationReport, error)
}

// Ledger is the slice of the compliance ledger the services need.
type Ledger interface {
	domain.AuditSink
	HasConsent(flag domain.ConsentFlag) bool
	StoreSnapshot(ctx context.Context, conv domain.Conversation) (domain.Snapshot, error)
}

type CredentialService interface {
	SaveCredential(ctx context.Context, provider, value string) error
	// GetCredential reports found=false when the credential is absent,
	// expired or unreadable.
	GetCredential(ctx context.Context, provider string) (string, bool, error)
	DeleteCredential(ctx context.Context, provider string) error
	ListProviders(ctx context.Context) ([]string, error)
	MigrateLegacy(ctx context.Context) (records.MigrationReport, error)
}

type CaseService interface {
	SaveCase(ctx context.Context, conv domain.Conversation) error
	GetCase(ctx context.Context, caseID string) (domain.Conversation, bool, error)
	DeleteCase(ctx context.Context, caseID string) error
	ListCases(ctx context.Context) ([]string, error)
	SaveSummary(ctx context.Context, s domain.Summary) error
	GetSummary(ctx context.Context, caseID string) (domain.Summary, bool, error)
	SaveExtraction(ctx context.Context, e domain.Extraction) error
	GetExtraction(ctx context.Context, caseID string) (domain.Extraction, bool, error)
	// RecordTranslation audits one call to a translation provider. Only the
	// outcome is recorded; the text is hashed.
	RecordTranslation(ctx context.Context, caseID, provider, text string, success bool, errMsg string)
}

type base struct {
	store      RecordStore
	ledger     Ledger
	classifier *apperrors.ErrorClassifier
	logger     *slog.Logger
}

func newBase(store RecordStore, ledger Ledger, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		store:      store,
		ledger:     ledger,
		classifier: apperrors.NewErrorClassifier(logger),
		logger:     logger,
	}
}

func (b base) sanitize(ctx context.Context, err error, op string) error {
	return b.classifier.Sanitize(ctx, err, op)
}
