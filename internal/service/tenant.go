package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// TenantStore is the data-access interface TenantService depends on.
type TenantStore interface {
	Provision(ctx context.Context, name, ownerUserID string) (*models.Tenant, *models.Membership, error)
	Get(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// TenantScheduler registers a tenant's repeating automation sweep.
type TenantScheduler interface {
	RegisterTenant(ctx context.Context, tenantID string) error
}

var _ domain.TenantService = (*TenantService)(nil)

// TenantService provisions tenants and reports the caller's tenant.
type TenantService struct {
	store     TenantStore
	scheduler TenantScheduler
	audit     AuditEnqueuer
	log       *logrus.Logger
}

// NewTenantService creates a TenantService.
func NewTenantService(store TenantStore, scheduler TenantScheduler, audit AuditEnqueuer, log *logrus.Logger) *TenantService {
	return &TenantService{store: store, scheduler: scheduler, audit: audit, log: log}
}

// Provision creates a tenant owned by user, binds the request to it and
// schedules its automation sweep. A caller already resolved to a tenant gets
// models.ErrAlreadyHasTenant. A scheduling failure is logged only: the
// sweep is re-asserted on the next start.
func (s *TenantService) Provision(ctx context.Context, user *models.User, req models.CreateTenantRequest) (*models.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if tc := tenant.From(ctx); tc != nil && tc.TenantID() != "" {
		return nil, models.ErrAlreadyHasTenant
	}

	t, _, err := s.store.Provision(ctx, strings.TrimSpace(req.Name), user.ID)
	if err != nil {
		return nil, err
	}

	if tc := tenant.From(ctx); tc != nil {
		if err := tc.SetTenant(t.ID, models.RoleOwner); err != nil {
			return nil, err
		}
	}

	audit(ctx, s.audit, t.ID, models.AuditTenantCreated, "Tenant", t.ID, nil)

	if err := s.scheduler.RegisterTenant(ctx, t.ID); err != nil {
		s.log.WithError(err).WithField("tenant_id", t.ID).Warn("scheduling automation sweep failed")
	}

	s.log.WithFields(logrus.Fields{"tenant_id": t.ID, "user_id": user.ID}).Info("tenant provisioned")

	return t, nil
}

// Overview returns the caller's tenant and role, or NeedsOnboarding when
// the caller has no tenant yet.
func (s *TenantService) Overview(ctx context.Context, user *models.User) (*models.TenantOverview, error) {
	tc := tenant.From(ctx)
	if tc == nil || tc.TenantID() == "" || tc.Role() == "" {
		return &models.TenantOverview{User: user, NeedsOnboarding: true}, nil
	}

	t, err := s.store.Get(ctx, tc.TenantID())
	if err != nil {
		return nil, err
	}

	return &models.TenantOverview{User: user, Tenant: t, Role: tc.Role()}, nil
}
