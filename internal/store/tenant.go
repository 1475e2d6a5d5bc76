package store

import (
	"context"
	"fmt"

	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// TenantStore provides data access for the tenants table.
type TenantStore struct {
	Base
}

// NewTenantStore creates a TenantStore.
func NewTenantStore(base Base) *TenantStore {
	return &TenantStore{Base: base}
}

// Provision creates a tenant and its first OWNER membership in one
// transaction. It fails with models.ErrAlreadyHasTenant when the user
// already belongs to a tenant, including when the request is already bound
// to that user's membership.
func (s *TenantStore) Provision(ctx context.Context, name, ownerUserID string) (*models.Tenant, *models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if tc := tenant.From(ctx); tc != nil && tc.TenantID() != "" {
		return nil, nil, models.ErrAlreadyHasTenant
	}

	sc, err := guard.Check(ctx, guard.Request{Op: guard.Create, Entity: guard.Tenant})
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var t models.Tenant
	err = tx.QueryRow(ctx,
		`INSERT INTO tenants (name) VALUES ($1) RETURNING id, name, created_at`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting tenant: %w", err)
	}

	if _, err := guard.Check(ctx, guard.Request{
		Op: guard.Create, Entity: guard.Membership, TenantID: t.ID, UserID: ownerUserID,
	}); err != nil {
		return nil, nil, err
	}
	if err := setTenant(ctx, tx, t.ID); err != nil {
		return nil, nil, err
	}

	m := models.Membership{TenantID: t.ID, UserID: ownerUserID, Role: models.RoleOwner}
	err = tx.QueryRow(ctx,
		`INSERT INTO memberships (tenant_id, user_id, role) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.ID, ownerUserID, m.Role,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if dbpool.IsUniqueViolation(err, "") {
			return nil, nil, models.ErrAlreadyHasTenant
		}

		return nil, nil, fmt.Errorf("inserting owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing tenant: %w", err)
	}

	return &t, &m, nil
}

// Get returns the tenant with the given id.
func (s *TenantStore) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(tenantID, models.ErrTenantNotFound); err != nil {
		return nil, err
	}

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindFirst, Entity: guard.Tenant, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	sc.TenantID = tenantID

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var t models.Tenant
	err = tx.QueryRow(ctx, `SELECT id, name, created_at FROM tenants WHERE id = $1`, tenantID).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, models.ErrTenantNotFound)
	}

	return &t, nil
}

// List returns every tenant, newest first. The guard only lets platform
// admins list tenants without an id filter.
func (s *TenantStore) List(ctx context.Context, p models.Page) ([]models.Tenant, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindMany, Entity: guard.Tenant})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	rows, err := tx.Query(ctx,
		`SELECT id, name, created_at FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		p.Size, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// ListIDs returns the id of every tenant. Used by the scheduler bootstrap
// under a platform-admin context.
func (s *TenantStore) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindMany, Entity: guard.Tenant})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	rows, err := tx.Query(ctx, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
