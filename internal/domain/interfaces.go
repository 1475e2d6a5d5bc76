// Package domain defines the canonical service interfaces shared by the
// HTTP layer and the service implementations. Consumers should depend on
// these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
)

// TenantService defines onboarding and the caller's own tenant view.
type TenantService interface {
	Provision(ctx context.Context, user *models.User, req models.CreateTenantRequest) (*models.Tenant, error)
	Overview(ctx context.Context, user *models.User) (*models.TenantOverview, error)
}

// UserService defines tenant membership management.
type UserService interface {
	ListMembers(ctx context.Context, tenantID string) ([]models.Membership, error)
	AddMember(ctx context.Context, tenantID string, req models.AddMemberRequest) (*models.Membership, error)
	UpdateRole(ctx context.Context, tenantID, userID string, req models.UpdateRoleRequest) (*models.Membership, error)
	RemoveMember(ctx context.Context, tenantID, userID string) error
}

// DatasetService defines dataset operations.
type DatasetService interface {
	CreateDataset(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error)
	ListDatasets(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error)
	GetDataset(ctx context.Context, tenantID, id string) (*models.Dataset, error)
	ListRecords(ctx context.Context, tenantID, datasetID string, spec daterange.Spec, p models.Page) ([]models.DatasetRecord, error)
}

// DataSourceService defines data source configuration. Returned sources
// are redacted.
type DataSourceService interface {
	CreateDataSource(ctx context.Context, tenantID string, req models.CreateDataSourceRequest) (*models.DataSource, error)
	ListDataSources(ctx context.Context, tenantID string, p models.Page) ([]models.DataSource, error)
	GetDataSource(ctx context.Context, tenantID, id string) (*models.DataSource, error)
	UpdateDataSource(ctx context.Context, tenantID, id string, req models.UpdateDataSourceRequest) (*models.DataSource, error)
	DeleteDataSource(ctx context.Context, tenantID, id string) error
}

// WebhookDelivery is one inbound webhook request.
type WebhookDelivery struct {
	DataSourceID string
	ID           string
	Timestamp    string
	Signature    string
	Body         []byte
}

// IngestionService defines the ingestion entry points.
type IngestionService interface {
	Upload(ctx context.Context, tenantID, dataSourceID, contentType string, body []byte) (*models.IngestionResult, error)
	Webhook(ctx context.Context, d WebhookDelivery) (*models.IngestionResult, error)
	Poll(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionResult, error)
	ListLogs(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error)
}

// MetricService defines metric definition and evaluation.
type MetricService interface {
	CreateMetric(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error)
	ListMetrics(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error)
	GetMetric(ctx context.Context, tenantID, id string) (*models.Metric, error)
	MetricValue(ctx context.Context, tenantID, id string, spec daterange.Spec) (*models.MetricValue, error)
	EnqueueEvaluation(ctx context.Context, tenantID, id string) (*models.Job, error)
}

// Viewer identifies the member a dashboard operation is performed for.
type Viewer struct {
	UserID string
	Role   models.Role
}

// DashboardService defines dashboard operations. VIEWERs only reach
// dashboards shared with them.
type DashboardService interface {
	CreateDashboard(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error)
	ListDashboards(ctx context.Context, tenantID string, v Viewer, p models.Page) ([]models.Dashboard, error)
	GetDashboard(ctx context.Context, tenantID, id string, v Viewer) (*models.Dashboard, error)
	UpdateDashboard(ctx context.Context, tenantID, id string, v Viewer, req models.UpdateDashboardRequest) (*models.Dashboard, error)
	ShareDashboard(ctx context.Context, tenantID, id string, req models.ShareDashboardRequest) (*models.DashboardPermission, error)
}

// AutomationService defines automation rule management and manual runs.
type AutomationService interface {
	CreateRule(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error)
	ListRules(ctx context.Context, tenantID string, p models.Page) ([]models.AutomationRule, error)
	GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error)
	SetRuleStatus(ctx context.Context, tenantID, id string, req models.UpdateRuleStatusRequest) (*models.AutomationRule, error)
	RunRule(ctx context.Context, tenantID, id string) (*models.RunOutcome, error)
	EnqueueRun(ctx context.Context, tenantID, id string) (*models.Job, error)
	ListRuns(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error)
}

// NotificationService defines the caller's notification inbox.
type NotificationService interface {
	ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, p models.Page) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, userID, id string) (*models.Notification, error)
}

// AuditService defines audit log queries.
type AuditService interface {
	Auditor
	QueryAudit(ctx context.Context, tenantID string, q models.AuditQuery) ([]models.AuditEntry, bool, error)
}

// Auditor is the minimal interface for recording audit entries.
type Auditor interface {
	RecordAudit(ctx context.Context, tenantID, action, entityType, entityID, actor string, meta map[string]any) error
}

// AdminService defines platform-admin listings.
type AdminService interface {
	ListTenants(ctx context.Context, p models.Page) ([]models.Tenant, error)
	ListUsers(ctx context.Context, p models.Page) ([]models.User, error)
	ListJobRuns(ctx context.Context, q models.JobRunQuery) ([]models.JobRun, error)
}
