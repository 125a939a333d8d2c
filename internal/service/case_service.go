package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	apperrors "github.com/spounge-ai/medvault/internal/errors"
)

const (
	CasePrefix       = "case_"
	summarySuffix    = "_summary"
	extractionSuffix = "_extraction"

	ActionTranslation = "translation"
)

type caseService struct {
	base
	clock func() time.Time
}

func NewCaseService(store RecordStore, ledger Ledger, logger *slog.Logger) CaseService {
	return &caseService{base: newBase(store, ledger, logger), clock: time.Now}
}

func caseName(caseID string) string       { return CasePrefix + caseID }
func summaryName(caseID string) string    { return CasePrefix + caseID + summarySuffix }
func extractionName(caseID string) string { return CasePrefix + caseID + extractionSuffix }

// SaveCase stores the conversation and, when collection consent is granted,
// an anonymized snapshot of it. A failed snapshot does not fail the save.
func (s *caseService) SaveCase(ctx context.Context, conv domain.Conversation) error {
	if conv.CaseID == "" {
		return s.sanitize(ctx, fmt.Errorf("%w: case id is required", apperrors.ErrInvalidInput), "SaveCase")
	}
	if conv.SavedAt.IsZero() {
		conv.SavedAt = s.clock().UTC()
	}
	if err := s.store.Put(ctx, caseName(conv.CaseID), conv); err != nil {
		return s.sanitize(ctx, err, "SaveCase")
	}

	if s.ledger.HasConsent(domain.ConsentDataCollection) {
		if _, err := s.ledger.StoreSnapshot(ctx, conv); err != nil {
			s.logger.WarnContext(ctx, "failed to store anonymized snapshot", "case_id", conv.CaseID, "error", err)
		}
	}
	return nil
}

func (s *caseService) GetCase(ctx context.Context, caseID string) (domain.Conversation, bool, error) {
	conv, found, err := getAs[domain.Conversation](ctx, s.store, caseName(caseID))
	if err != nil {
		return domain.Conversation{}, false, s.sanitize(ctx, err, "GetCase")
	}
	return conv, found, nil
}

// DeleteCase removes the case and its derived summary and extraction.
func (s *caseService) DeleteCase(ctx context.Context, caseID string) error {
	for _, name := range []string{caseName(caseID), summaryName(caseID), extractionName(caseID)} {
		if err := s.store.Delete(ctx, name); err != nil {
			return s.sanitize(ctx, err, "DeleteCase")
		}
	}
	return nil
}

// ListCases returns the ids of saved conversations, sorted.
func (s *caseService) ListCases(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, s.sanitize(ctx, err, "ListCases")
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id, ok := strings.CutPrefix(n, CasePrefix)
		if !ok || strings.HasSuffix(id, summarySuffix) || strings.HasSuffix(id, extractionSuffix) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *caseService) SaveSummary(ctx context.Context, sum domain.Summary) error {
	if sum.CaseID == "" {
		return s.sanitize(ctx, fmt.Errorf("%w: case id is required", apperrors.ErrInvalidInput), "SaveSummary")
	}
	if sum.GeneratedAt.IsZero() {
		sum.GeneratedAt = s.clock().UTC()
	}
	return s.sanitize(ctx, s.store.Put(ctx, summaryName(sum.CaseID), sum), "SaveSummary")
}

func (s *caseService) GetSummary(ctx context.Context, caseID string) (domain.Summary, bool, error) {
	sum, found, err := getAs[domain.Summary](ctx, s.store, summaryName(caseID))
	if err != nil {
		return domain.Summary{}, false, s.sanitize(ctx, err, "GetSummary")
	}
	return sum, found, nil
}

func (s *caseService) SaveExtraction(ctx context.Context, e domain.Extraction) error {
	if e.CaseID == "" {
		return s.sanitize(ctx, fmt.Errorf("%w: case id is required", apperrors.ErrInvalidInput), "SaveExtraction")
	}
	return s.sanitize(ctx, s.store.Put(ctx, extractionName(e.CaseID), e), "SaveExtraction")
}

func (s *caseService) GetExtraction(ctx context.Context, caseID string) (domain.Extraction, bool, error) {
	e, found, err := getAs[domain.Extraction](ctx, s.store, extractionName(caseID))
	if err != nil {
		return domain.Extraction{}, false, s.sanitize(ctx, err, "GetExtraction")
	}
	return e, found, nil
}

func (s *caseService) RecordTranslation(ctx context.Context, caseID, provider, text string, success bool, errMsg string) {
	sev := domain.SeverityLow
	if !success {
		sev = domain.SeverityMedium
	}
	s.ledger.LogEntry(ctx, ActionTranslation, text, domain.EntryOptions{
		DataKind:     domain.KindConversation,
		Severity:     sev,
		Success:      success,
		ErrorMessage: errMsg,
		Details: map[string]any{
			"caseId":     caseID,
			"provider":   provider,
			"textLength": len(text),
		},
	})
}

func getAs[T domain.Payload](ctx context.Context, store RecordStore, name string) (T, bool, error) {
	var zero T
	rec, found, err := store.Get(ctx, name)
	if err != nil || !found {
		return zero, false, err
	}
	v, ok := rec.Payload.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, ErrWrongRecordKind)
	}
	return v, true, nil
}
