package models

import "time"

// Audit actions recorded by the services.
const (
	AuditTenantCreated     = "TENANT_CREATED"
	AuditUserAdded         = "USER_ADDED"
	AuditUserRoleUpdated   = "USER_ROLE_UPDATED"
	AuditUserRemoved       = "USER_REMOVED"
	AuditDatasetCreated    = "DATASET_CREATED"
	AuditDataSourceCreated = "DATA_SOURCE_CREATED"
	AuditDataSourceUpdated = "DATA_SOURCE_UPDATED"
	AuditDataSourceDeleted = "DATA_SOURCE_DELETED"
	AuditMetricCreated     = "METRIC_CREATED"
	AuditDashboardCreated  = "DASHBOARD_CREATED"
	AuditDashboardUpdated  = "DASHBOARD_UPDATED"
	AuditDashboardShared   = "DASHBOARD_SHARED"
	AuditAutomationCreated = "AUTOMATION_CREATED"
	AuditAutomationUpdated = "AUTOMATION_UPDATED"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID          int64          `json:"id"`
	TenantID    string         `json:"tenantId"`
	ActorUserID string         `json:"actorUserId,omitempty"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AuditQuery holds filters for listing the audit log.
type AuditQuery struct {
	Action     string
	EntityType string
	Page       Page
}
