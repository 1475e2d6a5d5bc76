package service

import (
	"context"
	"errors"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// DashboardStore is the data-access interface DashboardService depends on.
type DashboardStore interface {
	Create(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error)
	List(ctx context.Context, tenantID, sharedWith string, p models.Page) ([]models.Dashboard, error)
	Get(ctx context.Context, tenantID, id string) (*models.Dashboard, error)
	Update(ctx context.Context, tenantID, id string, req models.UpdateDashboardRequest) (*models.Dashboard, error)
	Share(ctx context.Context, tenantID, dashboardID, userID string, canEdit bool) (*models.DashboardPermission, error)
	Permission(ctx context.Context, tenantID, dashboardID, userID string) (*models.DashboardPermission, error)
}

// MemberGetter loads one membership of a tenant.
type MemberGetter interface {
	Get(ctx context.Context, tenantID, userID string) (*models.Membership, error)
}

var _ domain.DashboardService = (*DashboardService)(nil)

// DashboardService manages dashboards. OWNERs and ANALYSTs see every
// dashboard of the tenant; VIEWERs see the ones shared with them and edit
// only those shared with edit rights.
type DashboardService struct {
	store   DashboardStore
	members MemberGetter
	audit   AuditEnqueuer
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(store DashboardStore, members MemberGetter, audit AuditEnqueuer) *DashboardService {
	return &DashboardService{store: store, members: members, audit: audit}
}

// CreateDashboard stores a dashboard.
func (s *DashboardService) CreateDashboard(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := s.store.Create(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditDashboardCreated, "Dashboard", d.ID, nil)

	return d, nil
}

// ListDashboards returns the dashboards visible to v.
func (s *DashboardService) ListDashboards(ctx context.Context, tenantID string, v domain.Viewer, p models.Page) ([]models.Dashboard, error) {
	sharedWith := ""
	if v.Role == models.RoleViewer {
		sharedWith = v.UserID
	}

	return s.store.List(ctx, tenantID, sharedWith, p)
}

// GetDashboard returns a dashboard if v may see it.
func (s *DashboardService) GetDashboard(ctx context.Context, tenantID, id string, v domain.Viewer) (*models.Dashboard, error) {
	d, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, tenantID, id, v, false); err != nil {
		return nil, err
	}

	return d, nil
}

// UpdateDashboard applies a partial update if v may edit the dashboard.
func (s *DashboardService) UpdateDashboard(
	ctx context.Context, tenantID, id string, v domain.Viewer, req models.UpdateDashboardRequest,
) (*models.Dashboard, error) {
	if err := s.authorize(ctx, tenantID, id, v, true); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := s.store.Update(ctx, tenantID, id, req)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditDashboardUpdated, "Dashboard", d.ID, nil)

	return d, nil
}

// ShareDashboard grants a member of the same tenant access to a dashboard.
// Sharing again replaces the edit right.
func (s *DashboardService) ShareDashboard(
	ctx context.Context, tenantID, id string, req models.ShareDashboardRequest,
) (*models.DashboardPermission, error) {
	if _, err := s.store.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.members.Get(ctx, tenantID, req.UserID); err != nil {
		if errors.Is(err, models.ErrMembershipNotFound) {
			return nil, models.Invalid("userId", "user is not a member of this tenant")
		}

		return nil, err
	}

	perm, err := s.store.Share(ctx, tenantID, id, req.UserID, req.CanEdit)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditDashboardShared, "DashboardPermission", id,
		map[string]any{"userId": req.UserID, "canEdit": req.CanEdit})

	return perm, nil
}

// authorize applies the VIEWER permission rules. Other roles pass.
func (s *DashboardService) authorize(ctx context.Context, tenantID, id string, v domain.Viewer, edit bool) error {
	if v.Role != models.RoleViewer {
		return nil
	}

	perm, err := s.store.Permission(ctx, tenantID, id, v.UserID)
	if err != nil {
		return err
	}
	if perm == nil || (edit && !perm.CanEdit) {
		return models.ErrDashboardDenied
	}

	return nil
}
