package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	consts "github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
)

// AuditRepository archives ledger entries in Postgres beyond the in-memory cap.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) CreateAuditEntriesBatch(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details of entry %s: %w", e.ID, err)
		}
		batch.Queue(consts.Queries[consts.StmtInsertAudit],
			e.ID, e.Timestamp, e.ActorID, e.Action, e.PayloadHash, e.SessionID,
			string(e.DataKind), string(e.Severity), e.Success, e.ErrorMessage, details, e.Exempt)
	}

	br := r.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to archive audit entry: %w", err)
		}
	}
	return nil
}

func (r *AuditRepository) GetAuditHistory(ctx context.Context, action string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, consts.Queries[consts.StmtAuditHistory], action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e        domain.AuditEntry
			kind     string
			severity string
			details  []byte
			ts       time.Time
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &e.PayloadHash, &e.SessionID,
			&kind, &severity, &e.Success, &e.ErrorMessage, &details, &e.Exempt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = ts.UTC()
		e.DataKind = domain.RecordKind(kind)
		e.Severity = domain.Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details of entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
