package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// MembershipStore is the data-access interface for tenant memberships.
type MembershipStore interface {
	List(ctx context.Context, tenantID string) ([]models.Membership, error)
	Get(ctx context.Context, tenantID, userID string) (*models.Membership, error)
	Create(ctx context.Context, tenantID, userID string, role models.Role) (*models.Membership, error)
	UpdateRole(ctx context.Context, tenantID, userID string, role models.Role) (*models.Membership, error)
	Delete(ctx context.Context, tenantID, userID string) error
}

// UserLookup finds users by email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// NoticeEnqueuer queues a notification for one user.
type NoticeEnqueuer interface {
	EnqueueNotification(ctx context.Context, tenantID, userID, title, body string) (*models.Job, error)
}

var _ domain.UserService = (*UserService)(nil)

// UserService manages the members of a tenant.
type UserService struct {
	members MembershipStore
	users   UserLookup
	notices NoticeEnqueuer
	audit   AuditEnqueuer
	log     *logrus.Logger
}

// NewUserService creates a UserService.
func NewUserService(members MembershipStore, users UserLookup, notices NoticeEnqueuer, audit AuditEnqueuer, log *logrus.Logger) *UserService {
	return &UserService{members: members, users: users, notices: notices, audit: audit, log: log}
}

// ListMembers returns the tenant's memberships with their users.
func (s *UserService) ListMembers(ctx context.Context, tenantID string) ([]models.Membership, error) {
	return s.members.List(ctx, tenantID)
}

// AddMember adds an already registered user, found by email, to the tenant
// and queues a notice for them. A queueing failure is logged only.
func (s *UserService) AddMember(ctx context.Context, tenantID string, req models.AddMemberRequest) (*models.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.Invalid("email", "no registered user with this email")
		}

		return nil, err
	}

	m, err := s.members.Create(ctx, tenantID, u.ID, req.Role)
	if err != nil {
		return nil, err
	}
	m.User = u

	audit(ctx, s.audit, tenantID, models.AuditUserAdded, "Membership", m.ID,
		map[string]any{"email": email, "role": req.Role})

	if _, err := s.notices.EnqueueNotification(ctx, tenantID, u.ID,
		"Added to workspace", "You were added as "+string(req.Role)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"user_id":   u.ID,
		}).Warn("queueing member notice failed")
	}

	return m, nil
}

// UpdateRole changes a member's role. The last OWNER cannot be demoted.
func (s *UserService) UpdateRole(ctx context.Context, tenantID, userID string, req models.UpdateRoleRequest) (*models.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m, err := s.members.UpdateRole(ctx, tenantID, userID, req.Role)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditUserRoleUpdated, "Membership", m.ID,
		map[string]any{"role": req.Role})

	return m, nil
}

// RemoveMember removes a member. The last OWNER cannot be removed.
func (s *UserService) RemoveMember(ctx context.Context, tenantID, userID string) error {
	m, err := s.members.Get(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	if err := s.members.Delete(ctx, tenantID, userID); err != nil {
		return err
	}

	audit(ctx, s.audit, tenantID, models.AuditUserRemoved, "Membership", m.ID, nil)

	return nil
}
