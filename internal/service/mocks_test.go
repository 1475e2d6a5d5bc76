package service

import (
	"context"
	"sync"
	"time"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// mockAuditor records audit calls.
type mockAuditor struct {
	mu      sync.Mutex
	calls   []AuditJob
	tenants []string

	err error
}

func (m *mockAuditor) RecordAudit(ctx context.Context, tenantID, action, entityType, entityID, actor string, meta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, AuditJob{
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Meta:       meta,
	})
	if tc := tenant.From(ctx); tc != nil {
		m.tenants = append(m.tenants, tc.TenantID())
	}
	return m.err
}

func (m *mockAuditor) getCalls() []AuditJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]AuditJob, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// mockAuditQueue records enqueued audit jobs synchronously.
type mockAuditQueue struct {
	mu   sync.Mutex
	jobs []AuditJob
}

func (m *mockAuditQueue) Enqueue(job *AuditJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, *job)
}

func (m *mockAuditQueue) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.jobs))
	for i, j := range m.jobs {
		out[i] = j.Action
	}
	return out
}

// mockTenantStore provisions tenants with fixed ids.
type mockTenantStore struct {
	provision func(ctx context.Context, name, ownerUserID string) (*models.Tenant, *models.Membership, error)
	get       func(ctx context.Context, tenantID string) (*models.Tenant, error)
}

func (m *mockTenantStore) Provision(ctx context.Context, name, ownerUserID string) (*models.Tenant, *models.Membership, error) {
	return m.provision(ctx, name, ownerUserID)
}

func (m *mockTenantStore) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return m.get(ctx, tenantID)
}

// mockScheduler records schedule registrations.
type mockScheduler struct {
	mu      sync.Mutex
	tenants []string
	sources []models.DataSource
	removed []string
	metrics []string
	rules   []string
	notes   []string

	err error
}

func (m *mockScheduler) RegisterTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = append(m.tenants, tenantID)
	return m.err
}

func (m *mockScheduler) RegisterDataSource(_ context.Context, ds models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, ds)
	return m.err
}

func (m *mockScheduler) RemoveDataSource(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	return m.err
}

func (m *mockScheduler) EnqueueRuleRun(_ context.Context, tenantID, ruleID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.rules = append(m.rules, ruleID)
	return &models.Job{ID: "job-2", Queue: models.QueueAutomation, TenantID: tenantID}, nil
}

func (m *mockScheduler) EnqueueNotification(_ context.Context, tenantID, userID, title, _ string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.notes = append(m.notes, userID+":"+title)
	return &models.Job{ID: "job-3", Queue: models.QueueNotifications, TenantID: tenantID}, nil
}

func (m *mockScheduler) EnqueueMetric(_ context.Context, tenantID, metricID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.metrics = append(m.metrics, metricID)
	return &models.Job{ID: "job-1", Queue: models.QueueMetrics, TenantID: tenantID}, nil
}

// mockMembershipStore keeps memberships in memory keyed by user id.
type mockMembershipStore struct {
	members   map[string]*models.Membership
	deleteErr error
}

func (m *mockMembershipStore) List(_ context.Context, _ string) ([]models.Membership, error) {
	out := make([]models.Membership, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, *mem)
	}
	return out, nil
}

func (m *mockMembershipStore) Get(_ context.Context, _ string, userID string) (*models.Membership, error) {
	mem, ok := m.members[userID]
	if !ok {
		return nil, models.ErrMembershipNotFound
	}
	return mem, nil
}

func (m *mockMembershipStore) Create(_ context.Context, tenantID, userID string, role models.Role) (*models.Membership, error) {
	if _, ok := m.members[userID]; ok {
		return nil, models.ErrAlreadyMember
	}
	mem := &models.Membership{ID: "m-" + userID, TenantID: tenantID, UserID: userID, Role: role}
	m.members[userID] = mem
	return mem, nil
}

func (m *mockMembershipStore) UpdateRole(_ context.Context, _ string, userID string, role models.Role) (*models.Membership, error) {
	mem, ok := m.members[userID]
	if !ok {
		return nil, models.ErrMembershipNotFound
	}
	mem.Role = role
	return mem, nil
}

func (m *mockMembershipStore) Delete(_ context.Context, _ string, userID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.members, userID)
	return nil
}

// mockUserLookup finds users by email.
type mockUserLookup map[string]*models.User

func (m mockUserLookup) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

// mockDatasetStore keeps datasets and appended records in memory.
type mockDatasetStore struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
	appended []models.NewRecord

	appendErr error
}

func (m *mockDatasetStore) Get(_ context.Context, _ string, id string) (*models.Dataset, error) {
	d, ok := m.datasets[id]
	if !ok {
		return nil, models.ErrDatasetNotFound
	}
	return d, nil
}

func (m *mockDatasetStore) AppendRecords(_ context.Context, _ string, _ string, records []models.NewRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.appended = append(m.appended, records...)
	return len(records), nil
}

// mockDataSourceStore keeps data sources in memory.
type mockDataSourceStore struct {
	sources map[string]*models.DataSource
}

func (m *mockDataSourceStore) Create(_ context.Context, tenantID string, req models.CreateDataSourceRequest) (*models.DataSource, error) {
	ds := &models.DataSource{ID: "ds-new", TenantID: tenantID, Name: req.Name, Type: req.Type, Config: req.Config}
	m.sources[ds.ID] = ds
	return ds, nil
}

func (m *mockDataSourceStore) List(_ context.Context, _ string, _ models.Page) ([]models.DataSource, error) {
	out := make([]models.DataSource, 0, len(m.sources))
	for _, ds := range m.sources {
		out = append(out, *ds)
	}
	return out, nil
}

func (m *mockDataSourceStore) Get(_ context.Context, _ string, id string) (*models.DataSource, error) {
	ds, ok := m.sources[id]
	if !ok {
		return nil, models.ErrDataSourceNotFound
	}
	cp := *ds
	return &cp, nil
}

func (m *mockDataSourceStore) FindForWebhook(ctx context.Context, id string) (*models.DataSource, error) {
	return m.Get(ctx, "", id)
}

func (m *mockDataSourceStore) Update(_ context.Context, _ string, id string, req models.UpdateDataSourceRequest) (*models.DataSource, error) {
	ds, ok := m.sources[id]
	if !ok {
		return nil, models.ErrDataSourceNotFound
	}
	if req.Name != nil {
		ds.Name = *req.Name
	}
	if req.Config != nil {
		ds.Config = *req.Config
	}
	cp := *ds
	return &cp, nil
}

func (m *mockDataSourceStore) Delete(_ context.Context, _ string, id string) error {
	if _, ok := m.sources[id]; !ok {
		return models.ErrDataSourceNotFound
	}
	delete(m.sources, id)
	return nil
}

type logEntry struct {
	status  models.IngestionStatus
	message string
	summary models.IngestionSummary
}

// mockLogStore records ingestion log writes.
type mockLogStore struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *mockLogStore) Create(
	_ context.Context, tenantID, dataSourceID string, status models.IngestionStatus, message string, summary models.IngestionSummary,
) (*models.IngestionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{status: status, message: message, summary: summary})
	return &models.IngestionLog{ID: "log-1", TenantID: tenantID, DataSourceID: dataSourceID, Status: status, Message: message}, nil
}

func (m *mockLogStore) List(_ context.Context, _ string, _ models.IngestionLogQuery) ([]models.IngestionLog, error) {
	return nil, nil
}

func (m *mockLogStore) last() logEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

// mockFetcher returns configured REST poll results.
type mockFetcher struct {
	records []map[string]any
	err     error
}

func (m *mockFetcher) Fetch(_ context.Context, _ string) ([]map[string]any, error) {
	return m.records, m.err
}

// mockReplay claims keys once, ignoring the TTL.
type mockReplay struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockReplay) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// mockMetricStore returns configured responses.
type mockMetricStore struct {
	create func(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error)
	get    func(ctx context.Context, tenantID, id string) (*models.Metric, error)
}

func (m *mockMetricStore) Create(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error) {
	return m.create(ctx, tenantID, req)
}

func (m *mockMetricStore) List(_ context.Context, _ string, _ models.Page) ([]models.Metric, error) {
	return nil, nil
}

func (m *mockMetricStore) Get(ctx context.Context, tenantID, id string) (*models.Metric, error) {
	return m.get(ctx, tenantID, id)
}

// mockCalculator returns a fixed value and remembers the date range it saw.
type mockCalculator struct {
	value float64
	spec  daterange.Spec
}

func (m *mockCalculator) ValueOf(_ context.Context, _ string, mt *models.Metric, spec daterange.Spec, now time.Time) (*models.MetricValue, error) {
	m.spec = spec
	return &models.MetricValue{MetricID: mt.ID, Value: m.value, End: now}, nil
}

// mockDashboardStore keeps dashboards and permissions in memory.
type mockDashboardStore struct {
	dashboards map[string]*models.Dashboard
	perms      map[string]*models.DashboardPermission // dashboardID + "/" + userID

	listedFor *string
}

func (m *mockDashboardStore) Create(_ context.Context, tenantID string, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	d := &models.Dashboard{ID: "dash-new", TenantID: tenantID, Name: req.Name}
	m.dashboards[d.ID] = d
	return d, nil
}

func (m *mockDashboardStore) List(_ context.Context, _ string, sharedWith string, _ models.Page) ([]models.Dashboard, error) {
	m.listedFor = &sharedWith
	return nil, nil
}

func (m *mockDashboardStore) Get(_ context.Context, _ string, id string) (*models.Dashboard, error) {
	d, ok := m.dashboards[id]
	if !ok {
		return nil, models.ErrDashboardNotFound
	}
	return d, nil
}

func (m *mockDashboardStore) Update(_ context.Context, _ string, id string, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	d, ok := m.dashboards[id]
	if !ok {
		return nil, models.ErrDashboardNotFound
	}
	if req.Name != nil {
		d.Name = *req.Name
	}
	return d, nil
}

func (m *mockDashboardStore) Share(_ context.Context, tenantID, dashboardID, userID string, canEdit bool) (*models.DashboardPermission, error) {
	p := &models.DashboardPermission{TenantID: tenantID, DashboardID: dashboardID, UserID: userID, CanEdit: canEdit}
	m.perms[dashboardID+"/"+userID] = p
	return p, nil
}

func (m *mockDashboardStore) Permission(_ context.Context, _ string, dashboardID, userID string) (*models.DashboardPermission, error) {
	return m.perms[dashboardID+"/"+userID], nil
}

// mockRuleStore returns configured responses.
type mockRuleStore struct {
	createErr error
	status    models.RuleStatus
}

func (m *mockRuleStore) CreateRule(_ context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.AutomationRule{ID: "rule-1", TenantID: tenantID, Name: req.Name, MetricID: req.MetricID, Action: req.Action}, nil
}

func (m *mockRuleStore) ListRules(_ context.Context, _ string, status models.RuleStatus, _ models.Page) ([]models.AutomationRule, error) {
	m.status = status
	return nil, nil
}

func (m *mockRuleStore) GetRule(_ context.Context, tenantID, id string) (*models.AutomationRule, error) {
	if id != "rule-1" {
		return nil, models.ErrRuleNotFound
	}
	return &models.AutomationRule{ID: id, TenantID: tenantID}, nil
}

func (m *mockRuleStore) SetRuleStatus(_ context.Context, tenantID, id string, status models.RuleStatus) (*models.AutomationRule, error) {
	if id != "rule-1" {
		return nil, models.ErrRuleNotFound
	}
	return &models.AutomationRule{ID: id, TenantID: tenantID, Status: status}, nil
}

func (m *mockRuleStore) ListRuns(_ context.Context, _ string, _ models.RunQuery) ([]models.AutomationRun, error) {
	return nil, nil
}

// mockEvaluator returns a fixed outcome.
type mockEvaluator struct {
	calls int
}

func (m *mockEvaluator) EvaluateRule(_ context.Context, _, ruleID string) (*models.RunOutcome, error) {
	m.calls++
	return &models.RunOutcome{Run: &models.AutomationRun{RuleID: ruleID}, Skipped: m.calls > 1}, nil
}
