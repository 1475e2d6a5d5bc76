package api_test

import (
	"context"
	"time"

	"github.com/persistorai/cadence/internal/auth"
	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// mockIngestion implements api.IngestionService for testing.
type mockIngestion struct {
	uploadFn  func(ctx context.Context, tenantID, dataSourceID, contentType string, body []byte) (*models.IngestionResult, error)
	webhookFn func(ctx context.Context, d domain.WebhookDelivery) (*models.IngestionResult, error)
	pollFn    func(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionResult, error)
	logsFn    func(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error)
}

func (m *mockIngestion) Upload(ctx context.Context, tenantID, dataSourceID, contentType string, body []byte) (*models.IngestionResult, error) {
	return m.uploadFn(ctx, tenantID, dataSourceID, contentType, body)
}

func (m *mockIngestion) Webhook(ctx context.Context, d domain.WebhookDelivery) (*models.IngestionResult, error) {
	return m.webhookFn(ctx, d)
}

func (m *mockIngestion) Poll(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionResult, error) {
	return m.pollFn(ctx, tenantID, dataSourceID)
}

func (m *mockIngestion) ListLogs(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error) {
	return m.logsFn(ctx, tenantID, q)
}

// mockDatasets implements api.DatasetService for testing.
type mockDatasets struct {
	createFn  func(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error)
	listFn    func(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error)
	getFn     func(ctx context.Context, tenantID, id string) (*models.Dataset, error)
	recordsFn func(ctx context.Context, tenantID, datasetID string, spec daterange.Spec, p models.Page) ([]models.DatasetRecord, error)
}

func (m *mockDatasets) CreateDataset(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error) {
	return m.createFn(ctx, tenantID, req)
}

func (m *mockDatasets) ListDatasets(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error) {
	return m.listFn(ctx, tenantID, p)
}

func (m *mockDatasets) GetDataset(ctx context.Context, tenantID, id string) (*models.Dataset, error) {
	return m.getFn(ctx, tenantID, id)
}

func (m *mockDatasets) ListRecords(ctx context.Context, tenantID, datasetID string, spec daterange.Spec, p models.Page) ([]models.DatasetRecord, error) {
	return m.recordsFn(ctx, tenantID, datasetID, spec, p)
}

// mockMetrics implements api.MetricService for testing.
type mockMetrics struct {
	createFn  func(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error)
	listFn    func(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error)
	getFn     func(ctx context.Context, tenantID, id string) (*models.Metric, error)
	valueFn   func(ctx context.Context, tenantID, id string, spec daterange.Spec) (*models.MetricValue, error)
	enqueueFn func(ctx context.Context, tenantID, id string) (*models.Job, error)
}

func (m *mockMetrics) CreateMetric(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error) {
	return m.createFn(ctx, tenantID, req)
}

func (m *mockMetrics) ListMetrics(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error) {
	return m.listFn(ctx, tenantID, p)
}

func (m *mockMetrics) GetMetric(ctx context.Context, tenantID, id string) (*models.Metric, error) {
	return m.getFn(ctx, tenantID, id)
}

func (m *mockMetrics) MetricValue(ctx context.Context, tenantID, id string, spec daterange.Spec) (*models.MetricValue, error) {
	return m.valueFn(ctx, tenantID, id, spec)
}

func (m *mockMetrics) EnqueueEvaluation(ctx context.Context, tenantID, id string) (*models.Job, error) {
	return m.enqueueFn(ctx, tenantID, id)
}

// mockDashboards implements api.DashboardService for testing.
type mockDashboards struct {
	createFn func(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error)
	listFn   func(ctx context.Context, tenantID string, v domain.Viewer, p models.Page) ([]models.Dashboard, error)
	getFn    func(ctx context.Context, tenantID, id string, v domain.Viewer) (*models.Dashboard, error)
	updateFn func(ctx context.Context, tenantID, id string, v domain.Viewer, req models.UpdateDashboardRequest) (*models.Dashboard, error)
	shareFn  func(ctx context.Context, tenantID, id string, req models.ShareDashboardRequest) (*models.DashboardPermission, error)
}

func (m *mockDashboards) CreateDashboard(ctx context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	return m.createFn(ctx, tenantID, req)
}

func (m *mockDashboards) ListDashboards(ctx context.Context, tenantID string, v domain.Viewer, p models.Page) ([]models.Dashboard, error) {
	return m.listFn(ctx, tenantID, v, p)
}

func (m *mockDashboards) GetDashboard(ctx context.Context, tenantID, id string, v domain.Viewer) (*models.Dashboard, error) {
	return m.getFn(ctx, tenantID, id, v)
}

func (m *mockDashboards) UpdateDashboard(ctx context.Context, tenantID, id string, v domain.Viewer, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	return m.updateFn(ctx, tenantID, id, v, req)
}

func (m *mockDashboards) ShareDashboard(ctx context.Context, tenantID, id string, req models.ShareDashboardRequest) (*models.DashboardPermission, error) {
	return m.shareFn(ctx, tenantID, id, req)
}

// mockAutomations implements api.AutomationService for testing.
type mockAutomations struct {
	createFn func(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error)
	listFn   func(ctx context.Context, tenantID string, p models.Page) ([]models.AutomationRule, error)
	getFn    func(ctx context.Context, tenantID, id string) (*models.AutomationRule, error)
	statusFn func(ctx context.Context, tenantID, id string, req models.UpdateRuleStatusRequest) (*models.AutomationRule, error)
	runFn    func(ctx context.Context, tenantID, id string) (*models.RunOutcome, error)
	queueFn  func(ctx context.Context, tenantID, id string) (*models.Job, error)
	runsFn   func(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error)
}

func (m *mockAutomations) CreateRule(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error) {
	return m.createFn(ctx, tenantID, req)
}

func (m *mockAutomations) ListRules(ctx context.Context, tenantID string, p models.Page) ([]models.AutomationRule, error) {
	return m.listFn(ctx, tenantID, p)
}

func (m *mockAutomations) GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	return m.getFn(ctx, tenantID, id)
}

func (m *mockAutomations) SetRuleStatus(ctx context.Context, tenantID, id string, req models.UpdateRuleStatusRequest) (*models.AutomationRule, error) {
	return m.statusFn(ctx, tenantID, id, req)
}

func (m *mockAutomations) RunRule(ctx context.Context, tenantID, id string) (*models.RunOutcome, error) {
	return m.runFn(ctx, tenantID, id)
}

func (m *mockAutomations) EnqueueRun(ctx context.Context, tenantID, id string) (*models.Job, error) {
	return m.queueFn(ctx, tenantID, id)
}

func (m *mockAutomations) ListRuns(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error) {
	return m.runsFn(ctx, tenantID, q)
}

// mockTokens treats the bearer token as a session for the user of that id.
type mockTokens struct{}

func (mockTokens) Authenticate(raw string) (auth.Principal, error) {
	if raw == "bad" {
		return auth.Principal{}, auth.ErrInvalidToken
	}

	return auth.Principal{Session: &auth.SessionClaims{UserID: raw}}, nil
}

func (mockTokens) IssueSession(userID, tenantID string, role models.Role, _ bool) (string, error) {
	return "session:" + userID + ":" + tenantID + ":" + string(role), nil
}

func (mockTokens) SessionTTL() time.Duration { return time.Hour }

// mockUsers resolves every session user id to a user with that id.
type mockUsers struct{}

func (mockUsers) FindOrCreate(_ context.Context, id models.Identity) (*models.User, error) {
	return &models.User{ID: id.ExternalID, Email: id.Email}, nil
}

func (mockUsers) Get(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Email: userID + "@example.com"}, nil
}

// mockMembers maps user ids to their tenant role.
type mockMembers map[string]models.Role

func (m mockMembers) FindForUser(_ context.Context, userID string) (*models.Membership, error) {
	role, ok := m[userID]
	if !ok {
		return nil, nil
	}

	return &models.Membership{TenantID: testTenantID, UserID: userID, Role: role}, nil
}

// mockAdmin implements api.AdminService for testing.
type mockAdmin struct {
	jobsFn func(ctx context.Context, q models.JobRunQuery) ([]models.JobRun, error)
}

func (m *mockAdmin) ListTenants(context.Context, models.Page) ([]models.Tenant, error) {
	return []models.Tenant{}, nil
}

func (m *mockAdmin) ListUsers(context.Context, models.Page) ([]models.User, error) {
	return []models.User{}, nil
}

func (m *mockAdmin) ListJobRuns(ctx context.Context, q models.JobRunQuery) ([]models.JobRun, error) {
	return m.jobsFn(ctx, q)
}
