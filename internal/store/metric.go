package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// MetricStore provides data access for metric definitions.
type MetricStore struct {
	Base
}

// NewMetricStore creates a MetricStore.
func NewMetricStore(base Base) *MetricStore {
	return &MetricStore{Base: base}
}

const metricColumns = `id, tenant_id, name, dataset_id, definition, created_at`

func scanMetric(scan func(dest ...any) error) (*models.Metric, error) {
	var m models.Metric
	var def []byte
	if err := scan(&m.ID, &m.TenantID, &m.Name, &m.DatasetID, &def, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(def, &m.Definition); err != nil {
		return nil, fmt.Errorf("decoding metric %s definition: %w", m.ID, err)
	}

	return &m, nil
}

// Create inserts a metric. The dataset must belong to the same tenant.
func (s *MetricStore) Create(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(req.DatasetID, models.ErrDatasetNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.Create, guard.Metric, tenantID)
	if err != nil {
		return nil, err
	}

	def, err := json.Marshal(req.Definition)
	if err != nil {
		return nil, fmt.Errorf("encoding definition: %w", err)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	// RLS hides other tenants' datasets, so an INSERT ... SELECT yields no row
	// for a foreign dataset id.
	m, err := scanMetric(tx.QueryRow(ctx, `
		INSERT INTO metrics (tenant_id, name, dataset_id, definition)
		SELECT $1, $2, d.id, $4 FROM datasets d WHERE d.id = $3 AND d.tenant_id = $1
		RETURNING `+metricColumns,
		sc.TenantID, req.Name, req.DatasetID, def).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDatasetNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing metric: %w", err)
	}

	return m, nil
}

// List returns a page of the tenant's metrics, newest first.
func (s *MetricStore) List(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Metric, tenantID)
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
	query := `SELECT ` + metricColumns + ` FROM metrics WHERE ` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	defer rows.Close()

	var out []models.Metric
	for rows.Next() {
		m, err := scanMetric(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning metric: %w", err)
		}
		out = append(out, *m)
	}

	return out, rows.Err()
}

// Get returns one metric of the tenant.
func (s *MetricStore) Get(ctx context.Context, tenantID, id string) (*models.Metric, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrMetricNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.Metric, tenantID)
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

	m, err := scanMetric(tx.QueryRow(ctx, `SELECT `+metricColumns+` FROM metrics WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrMetricNotFound)
	}

	return m, nil
}
