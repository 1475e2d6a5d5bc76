package api

import (
	"time"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// Service interfaces consumed by the handlers. The canonical definitions
// live in the domain package.
type (
	TenantService       = domain.TenantService
	UserService         = domain.UserService
	DatasetService      = domain.DatasetService
	DataSourceService   = domain.DataSourceService
	IngestionService    = domain.IngestionService
	MetricService       = domain.MetricService
	DashboardService    = domain.DashboardService
	AutomationService   = domain.AutomationService
	NotificationService = domain.NotificationService
	AuditService        = domain.AuditService
	AdminService        = domain.AdminService
)

// SessionIssuer signs internal session tokens for authenticated callers.
type SessionIssuer interface {
	IssueSession(userID, tenantID string, role models.Role, platformAdmin bool) (string, error)
	SessionTTL() time.Duration
}
