package store

import (
	"context"
	"fmt"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// DataSourceStore provides data access for data sources. Webhook secrets are
// encrypted at rest with the tenant's derived key.
type DataSourceStore struct {
	Base
}

// NewDataSourceStore creates a DataSourceStore.
func NewDataSourceStore(base Base) *DataSourceStore {
	return &DataSourceStore{Base: base}
}

const dataSourceColumns = `id, tenant_id, name, type, config, created_at, updated_at`

func (s *DataSourceStore) scan(ctx context.Context, scan func(dest ...any) error) (*models.DataSource, error) {
	var d models.DataSource
	var cfg []byte
	if err := scan(&d.ID, &d.TenantID, &d.Name, &d.Type, &cfg, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}

	c, err := s.openConfig(ctx, d.TenantID, cfg)
	if err != nil {
		return nil, fmt.Errorf("data source %s: %w", d.ID, err)
	}
	d.Config = c

	return &d, nil
}

// Create inserts a data source.
func (s *DataSourceStore) Create(ctx context.Context, tenantID string, req models.CreateDataSourceRequest) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.DataSource, tenantID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.sealConfig(ctx, sc.TenantID, req.Config)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	d, err := s.scan(ctx, tx.QueryRow(ctx,
		`INSERT INTO data_sources (tenant_id, name, type, config) VALUES ($1, $2, $3, $4) RETURNING `+dataSourceColumns,
		sc.TenantID, req.Name, req.Type, cfg).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting data source: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing data source: %w", err)
	}

	return d, nil
}

// List returns a page of the tenant's data sources, newest first.
func (s *DataSourceStore) List(ctx context.Context, tenantID string, p models.Page) ([]models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.DataSource, tenantID)
	if err != nil {
		return nil, err
	}

	var w where
	w.scope(sc, "tenant_id")
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE ` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())

	return s.list(ctx, sc, query, w.args)
}

// ListByType returns every data source of the given type across all
// tenants. Only a platform-admin context passes the guard.
func (s *DataSourceStore) ListByType(ctx context.Context, typ models.DataSourceType) ([]models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindMany, Entity: guard.DataSource})
	if err != nil {
		return nil, err
	}
	if !sc.Unscoped {
		return nil, models.ErrPlatformAdminOnly
	}

	return s.list(ctx, sc, `SELECT `+dataSourceColumns+` FROM data_sources WHERE type = $1 ORDER BY created_at`, []any{typ})
}

func (s *DataSourceStore) list(ctx context.Context, sc guard.Scope, query string, args []any) ([]models.DataSource, error) {
	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing data sources: %w", err)
	}
	defer rows.Close()

	var out []models.DataSource
	for rows.Next() {
		d, err := s.scan(ctx, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning data source: %w", err)
		}
		out = append(out, *d)
	}

	return out, rows.Err()
}

// Get returns one data source of the tenant with its secret decrypted.
func (s *DataSourceStore) Get(ctx context.Context, tenantID, id string) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDataSourceNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.DataSource, tenantID)
	if err != nil {
		return nil, err
	}

	return s.findOne(ctx, sc, id)
}

// FindForWebhook resolves a data source by id before any tenant is known.
// The guard allows this exactly once per webhook context; the source's
// tenant is then bound to the context for everything that follows.
func (s *DataSourceStore) FindForWebhook(ctx context.Context, id string) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDataSourceNotFound); err != nil {
		return nil, err
	}

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindFirst, Entity: guard.DataSource})
	if err != nil {
		return nil, err
	}

	d, err := s.findOne(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	if tc := tenant.From(ctx); tc != nil && tc.IsWebhook() {
		if err := tc.SetTenant(d.TenantID, ""); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (s *DataSourceStore) findOne(ctx context.Context, sc guard.Scope, id string) (*models.DataSource, error) {
	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)

	d, err := s.scan(ctx, tx.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDataSourceNotFound)
	}

	return d, nil
}

// Update applies a partial update. A nil config keeps the stored one,
// including its secret.
func (s *DataSourceStore) Update(ctx context.Context, tenantID, id string, req models.UpdateDataSourceRequest) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDataSourceNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.DataSource, tenantID)
	if err != nil {
		return nil, err
	}

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)

	set := "updated_at = now()"
	if req.Name != nil {
		set += ", name = " + w.next(*req.Name)
	}
	if req.Config != nil {
		cfg, err := s.sealConfig(ctx, sc.TenantID, *req.Config)
		if err != nil {
			return nil, err
		}
		set += ", config = " + w.next(cfg)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	d, err := s.scan(ctx, tx.QueryRow(ctx,
		`UPDATE data_sources SET `+set+` WHERE `+w.String()+` RETURNING `+dataSourceColumns, w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDataSourceNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing data source update: %w", err)
	}

	return d, nil
}

// Delete removes a data source and its ingestion logs.
func (s *DataSourceStore) Delete(ctx context.Context, tenantID, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDataSourceNotFound); err != nil {
		return err
	}

	sc, err := scoped(ctx, guard.DeleteMany, guard.DataSource, tenantID)
	if err != nil {
		return err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)

	tag, err := tx.Exec(ctx, `DELETE FROM data_sources WHERE `+w.String(), w.args...)
	if err != nil {
		return fmt.Errorf("deleting data source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDataSourceNotFound
	}

	return tx.Commit(ctx)
}
