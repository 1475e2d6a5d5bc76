package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// DatasetStore provides data access for datasets and their append-only records.
type DatasetStore struct {
	Base
}

// NewDatasetStore creates a DatasetStore.
func NewDatasetStore(base Base) *DatasetStore {
	return &DatasetStore{Base: base}
}

const datasetColumns = `id, tenant_id, name, schema, created_at`

func scanDataset(scan func(dest ...any) error) (*models.Dataset, error) {
	var d models.Dataset
	var schema []byte
	if err := scan(&d.ID, &d.TenantID, &d.Name, &schema, &d.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schema, &d.Schema); err != nil {
		return nil, fmt.Errorf("decoding dataset %s schema: %w", d.ID, err)
	}

	return &d, nil
}

// Create inserts a dataset.
func (s *DatasetStore) Create(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.Dataset, tenantID)
	if err != nil {
		return nil, err
	}

	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	d, err := scanDataset(tx.QueryRow(ctx,
		`INSERT INTO datasets (tenant_id, name, schema) VALUES ($1, $2, $3) RETURNING `+datasetColumns,
		sc.TenantID, req.Name, schema).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing dataset: %w", err)
	}

	return d, nil
}

// List returns a page of the tenant's datasets, newest first.
func (s *DatasetStore) List(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Dataset, tenantID)
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
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE ` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var out []models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		out = append(out, *d)
	}

	return out, rows.Err()
}

// Get returns one dataset of the tenant.
func (s *DatasetStore) Get(ctx context.Context, tenantID, id string) (*models.Dataset, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDatasetNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.Dataset, tenantID)
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
	w.eq("id", id)

	d, err := scanDataset(tx.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDatasetNotFound)
	}

	return d, nil
}

// AppendRecords inserts records into the dataset in one batch. Records are
// never updated afterwards.
func (s *DatasetStore) AppendRecords(ctx context.Context, tenantID, datasetID string, recs []models.NewRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	supplied := make([]string, len(recs))
	for i := range supplied {
		supplied[i] = tenantID
	}
	sc, err := guard.Check(ctx, guard.Request{Op: guard.CreateMany, Entity: guard.DatasetRecord, TenantID: tenantID, TenantIDs: supplied})
	if err != nil {
		return 0, err
	}
	if sc.TenantID == "" {
		if tenantID == "" {
			return 0, models.ErrTenantMissing
		}
		sc.TenantID = tenantID
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	batch := &pgx.Batch{}
	for _, r := range recs {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return 0, fmt.Errorf("encoding record data: %w", err)
		}
		batch.Queue(
			`INSERT INTO dataset_records (tenant_id, dataset_id, event_time, data) VALUES ($1, $2, $3, $4)`,
			sc.TenantID, datasetID, r.EventTime, data)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("inserting records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing records: %w", err)
	}

	return len(recs), nil
}

const recordColumns = `id, tenant_id, dataset_id, event_time, data, created_at`

func scanRecord(scan func(dest ...any) error) (*models.DatasetRecord, error) {
	var r models.DatasetRecord
	var data []byte
	if err := scan(&r.ID, &r.TenantID, &r.DatasetID, &r.EventTime, &data, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &r.Data); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", r.ID, err)
	}

	return &r, nil
}

// RecordsInWindow returns every record of the dataset whose event time falls
// within win, newest first. A zero page returns all matching records.
func (s *DatasetStore) RecordsInWindow(ctx context.Context, tenantID, datasetID string, win daterange.Window, p models.Page) ([]models.DatasetRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(datasetID, models.ErrDatasetNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindMany, guard.DatasetRecord, tenantID)
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
	w.eq("dataset_id", datasetID)
	w.cmp("event_time", ">=", win.Start)
	w.cmp("event_time", "<=", win.End)

	query := `SELECT ` + recordColumns + ` FROM dataset_records WHERE ` + w.String() + ` ORDER BY event_time DESC`
	if p.Size > 0 {
		query += ` LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())
	}

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []models.DatasetRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, *r)
	}

	return out, rows.Err()
}
