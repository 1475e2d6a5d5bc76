package service

import (
	"context"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// TenantLister lists every tenant.
type TenantLister interface {
	List(ctx context.Context, p models.Page) ([]models.Tenant, error)
}

// UserLister lists every user.
type UserLister interface {
	List(ctx context.Context, p models.Page) ([]models.User, error)
}

// JobHistory lists finished background jobs.
type JobHistory interface {
	ListRuns(ctx context.Context, queue models.JobQueue, state models.JobState, limit int) ([]models.JobRun, error)
}

var _ domain.AdminService = (*AdminService)(nil)

// AdminService serves the platform-admin listings. The store's guard
// rejects callers that are not platform admins.
type AdminService struct {
	tenants TenantLister
	users   UserLister
	jobs    JobHistory
}

// NewAdminService creates an AdminService.
func NewAdminService(tenants TenantLister, users UserLister, jobs JobHistory) *AdminService {
	return &AdminService{tenants: tenants, users: users, jobs: jobs}
}

// ListTenants returns a page of all tenants.
func (s *AdminService) ListTenants(ctx context.Context, p models.Page) ([]models.Tenant, error) {
	return s.tenants.List(ctx, p)
}

// ListUsers returns a page of all users.
func (s *AdminService) ListUsers(ctx context.Context, p models.Page) ([]models.User, error) {
	return s.users.List(ctx, p)
}

// ListJobRuns returns the newest finished background jobs across tenants.
func (s *AdminService) ListJobRuns(ctx context.Context, q models.JobRunQuery) ([]models.JobRun, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	return s.jobs.ListRuns(ctx, q.Queue, q.State, q.Limit)
}
