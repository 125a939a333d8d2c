package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/records"
)

type credentialService struct {
	base
	legacyName string
}

func NewCredentialService(store RecordStore, ledger Ledger, legacyName string, logger *slog.Logger) CredentialService {
	return &credentialService{
		base:       newBase(store, ledger, logger),
		legacyName: legacyName,
	}
}

func (s *credentialService) SaveCredential(ctx context.Context, provider, value string) error {
	if strings.HasPrefix(provider, CasePrefix) {
		return s.sanitize(ctx, fmt.Errorf("%w: provider name is reserved", apperrors.ErrInvalidInput), "SaveCredential")
	}
	if provider == "" || value == "" {
		return s.sanitize(ctx, fmt.Errorf("%w: provider and value are required", apperrors.ErrInvalidInput), "SaveCredential")
	}
	err := s.store.Put(ctx, provider, domain.Credential{Provider: provider, Value: value})
	if err != nil {
		return s.sanitize(ctx, err, "SaveCredential")
	}
	s.logger.InfoContext(ctx, "credential saved", "provider", provider)
	return nil
}

func (s *credentialService) GetCredential(ctx context.Context, provider string) (string, bool, error) {
	cred, found, err := getAs[domain.Credential](ctx, s.store, provider)
	if err != nil {
		return "", false, s.sanitize(ctx, err, "GetCredential")
	}
	return cred.Value, found, nil
}

func (s *credentialService) DeleteCredential(ctx context.Context, provider string) error {
	if err := s.store.Delete(ctx, provider); err != nil {
		return s.sanitize(ctx, err, "DeleteCredential")
	}
	return nil
}

func (s *credentialService) ListProviders(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, s.sanitize(ctx, err, "ListProviders")
	}
	var providers []string
	for _, n := range names {
		if !strings.HasPrefix(n, CasePrefix) {
			providers = append(providers, n)
		}
	}
	sort.Strings(providers)
	return providers, nil
}

// MigrateLegacy moves the configured plaintext blob into credential records
// named after each legacy key.
func (s *credentialService) MigrateLegacy(ctx context.Context) (records.MigrationReport, error) {
	if s.legacyName == "" {
		return records.MigrationReport{}, nil
	}
	report, err := s.store.MigrateLegacy(ctx, s.legacyName)
	if err != nil {
		return report, s.sanitize(ctx, err, "MigrateLegacy")
	}
	if report.Migrated > 0 || report.Failed > 0 {
		s.logger.InfoContext(ctx, "legacy credentials migrated", "migrated", report.Migrated, "failed", report.Failed)
	}
	return report, nil
}
