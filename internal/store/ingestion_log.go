package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// IngestionLogStore provides data access for the append-only ingestion log.
type IngestionLogStore struct {
	Base
}

// NewIngestionLogStore creates an IngestionLogStore.
func NewIngestionLogStore(base Base) *IngestionLogStore {
	return &IngestionLogStore{Base: base}
}

const ingestionLogColumns = `id, tenant_id, data_source_id, status, message, raw_payload, created_at`

func scanIngestionLog(scan func(dest ...any) error) (*models.IngestionLog, error) {
	var l models.IngestionLog
	var raw []byte
	if err := scan(&l.ID, &l.TenantID, &l.DataSourceID, &l.Status, &l.Message, &raw, &l.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &l.RawPayload); err != nil {
		return nil, fmt.Errorf("decoding ingestion log %s: %w", l.ID, err)
	}

	return &l, nil
}

// Create appends an ingestion log entry.
func (s *IngestionLogStore) Create(ctx context.Context, tenantID, dataSourceID string, status models.IngestionStatus, message string, summary models.IngestionSummary) (*models.IngestionLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.IngestionLog, tenantID)
	if err != nil {
		return nil, err
	}

	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encoding ingestion summary: %w", err)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	l, err := scanIngestionLog(tx.QueryRow(ctx, `
		INSERT INTO ingestion_logs (tenant_id, data_source_id, status, message, raw_payload)
		VALUES ($1, $2, $3, $4, $5) RETURNING `+ingestionLogColumns,
		sc.TenantID, dataSourceID, status, message, raw).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting ingestion log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing ingestion log: %w", err)
	}

	return l, nil
}

// List returns the tenant's ingestion logs matching q, newest first.
func (s *IngestionLogStore) List(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.IngestionLog, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	if q.DataSourceID != "" {
		if err := validID(q.DataSourceID, models.ErrDataSourceNotFound); err != nil {
			return nil, err
		}
		w.eq("data_source_id", q.DataSourceID)
	}
	if q.Status != "" {
		w.eq("status", q.Status)
	}

	query := `SELECT ` + ingestionLogColumns + ` FROM ingestion_logs WHERE ` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(q.Page.Size) + ` OFFSET ` + w.next(q.Page.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion logs: %w", err)
	}
	defer rows.Close()

	var out []models.IngestionLog
	for rows.Next() {
		l, err := scanIngestionLog(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ingestion log: %w", err)
		}
		out = append(out, *l)
	}

	return out, rows.Err()
}
