package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// DashboardStore provides data access for dashboards and their per-user
// permissions.
type DashboardStore struct {
	Base
}

// NewDashboardStore creates a DashboardStore.
func NewDashboardStore(base Base) *DashboardStore {
	return &DashboardStore{Base: base}
}

const dashboardColumns = `d.id, d.tenant_id, d.name, d.layout, d.created_at, d.updated_at`

func scanDashboard(scan func(dest ...any) error) (*models.Dashboard, error) {
	var d models.Dashboard
	var layout []byte
	if err := scan(&d.ID, &d.TenantID, &d.Name, &layout, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Layout = layout

	return &d, nil
}

func layoutOrEmpty(layout []byte) []byte {
	if len(layout) == 0 {
		return []byte("{}")
	}

	return layout
}

// Create inserts a dashboard.
func (s *DashboardStore) Create(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.Dashboard, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	d, err := scanDashboard(tx.QueryRow(ctx,
		`INSERT INTO dashboards AS d (tenant_id, name, layout) VALUES ($1, $2, $3) RETURNING `+dashboardColumns,
		sc.TenantID, req.Name, layoutOrEmpty(req.Layout)).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting dashboard: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing dashboard: %w", err)
	}

	return d, nil
}

// List returns a page of the tenant's dashboards, newest first. A non-empty
// sharedWith limits the result to dashboards shared with that user.
func (s *DashboardStore) List(ctx context.Context, tenantID, sharedWith string, p models.Page) ([]models.Dashboard, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Dashboard, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "d.tenant_id")
	from := `dashboards d`
	if sharedWith != "" {
		from += ` JOIN dashboard_permissions p ON p.dashboard_id = d.id AND p.tenant_id = d.tenant_id`
		w.eq("p.user_id", sharedWith)
	}

	query := `SELECT ` + dashboardColumns + ` FROM ` + from + ` WHERE ` + w.String() +
		` ORDER BY d.created_at DESC LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing dashboards: %w", err)
	}
	defer rows.Close()

	var out []models.Dashboard
	for rows.Next() {
		d, err := scanDashboard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning dashboard: %w", err)
		}
		out = append(out, *d)
	}

	return out, rows.Err()
}

// Get returns one dashboard of the tenant.
func (s *DashboardStore) Get(ctx context.Context, tenantID, id string) (*models.Dashboard, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDashboardNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.Dashboard, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "d.tenant_id")
	w.eq("d.id", id)

	d, err := scanDashboard(tx.QueryRow(ctx, `SELECT `+dashboardColumns+` FROM dashboards d WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDashboardNotFound)
	}

	return d, nil
}

// Update applies a partial update to a dashboard.
func (s *DashboardStore) Update(ctx context.Context, tenantID, id string, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrDashboardNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.Dashboard, tenantID)
	if err != nil {
		return nil, err
	}

	var w where
	w.scope(sc, "d.tenant_id")
	w.eq("d.id", id)

	set := "updated_at = now()"
	if req.Name != nil {
		set += ", name = " + w.next(*req.Name)
	}
	if len(req.Layout) > 0 {
		set += ", layout = " + w.next([]byte(req.Layout))
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	d, err := scanDashboard(tx.QueryRow(ctx,
		`UPDATE dashboards d SET `+set+` WHERE `+w.String()+` RETURNING `+dashboardColumns, w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrDashboardNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing dashboard update: %w", err)
	}

	return d, nil
}

// Share grants or updates userID's permission on a dashboard. The row is
// updated in place when present and created otherwise, in one transaction.
func (s *DashboardStore) Share(ctx context.Context, tenantID, dashboardID, userID string, canEdit bool) (*models.DashboardPermission, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(dashboardID, models.ErrDashboardNotFound); err != nil {
		return nil, err
	}
	if err := validID(userID, models.ErrMembershipNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.DashboardPermission, tenantID)
	if err != nil {
		return nil, err
	}
	if _, err := scoped(ctx, guard.Create, guard.DashboardPermission, tenantID); err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("dashboard_id", dashboardID)
	w.eq("user_id", userID)
	editArg := w.next(canEdit)

	perm := models.DashboardPermission{TenantID: sc.TenantID, DashboardID: dashboardID, UserID: userID, CanEdit: canEdit}
	err = tx.QueryRow(ctx,
		`UPDATE dashboard_permissions SET can_edit = `+editArg+` WHERE `+w.String()+` RETURNING created_at`,
		w.args...).Scan(&perm.CreatedAt)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO dashboard_permissions (tenant_id, dashboard_id, user_id, can_edit)
			SELECT $1, d.id, $3, $4 FROM dashboards d WHERE d.id = $2 AND d.tenant_id = $1
			RETURNING created_at`,
			sc.TenantID, dashboardID, userID, canEdit).Scan(&perm.CreatedAt)
		if err != nil {
			return nil, notFound(isDuplicate(err), models.ErrDashboardNotFound)
		}
	default:
		return nil, fmt.Errorf("updating dashboard permission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing dashboard permission: %w", err)
	}

	return &perm, nil
}

// Permission returns userID's permission on the dashboard, or nil when the
// dashboard has not been shared with them.
func (s *DashboardStore) Permission(ctx context.Context, tenantID, dashboardID, userID string) (*models.DashboardPermission, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(dashboardID, models.ErrDashboardNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.DashboardPermission, tenantID)
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
	w.eq("dashboard_id", dashboardID)
	w.eq("user_id", userID)

	var p models.DashboardPermission
	err = tx.QueryRow(ctx,
		`SELECT tenant_id, dashboard_id, user_id, can_edit, created_at FROM dashboard_permissions WHERE `+w.String(),
		w.args...).Scan(&p.TenantID, &p.DashboardID, &p.UserID, &p.CanEdit, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading dashboard permission: %w", err)
	}

	return &p, nil
}
