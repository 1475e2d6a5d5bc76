// Package guard is the single choke point every store operation passes
// through. It derives the tenant predicate from the tenant.Context carried by
// ctx and rejects operations that could touch another tenant's rows.
package guard

import (
	"context"

	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// Entity names a persisted entity type.
type Entity string

// Persisted entities.
const (
	Tenant              Entity = "tenant"
	User                Entity = "user"
	Job                 Entity = "job"
	Membership          Entity = "membership"
	DataSource          Entity = "data_source"
	Dataset             Entity = "dataset"
	DatasetRecord       Entity = "dataset_record"
	IngestionLog        Entity = "ingestion_log"
	Metric              Entity = "metric"
	Dashboard           Entity = "dashboard"
	DashboardPermission Entity = "dashboard_permission"
	AutomationRule      Entity = "automation_rule"
	AutomationRun       Entity = "automation_run"
	Notification        Entity = "notification"
	AuditLog            Entity = "audit_log"
)

var tenantScoped = map[Entity]bool{
	Membership:          true,
	DataSource:          true,
	Dataset:             true,
	DatasetRecord:       true,
	IngestionLog:        true,
	Metric:              true,
	Dashboard:           true,
	DashboardPermission: true,
	AutomationRule:      true,
	AutomationRun:       true,
	Notification:        true,
	AuditLog:            true,
}

// IsTenantScoped reports whether rows of e belong to exactly one tenant.
func IsTenantScoped(e Entity) bool {
	return tenantScoped[e]
}

// Op is the kind of data-store operation.
type Op int

// Operation kinds. The single-row direct-key forms are rejected on tenant
// entities; stores use FindFirst/UpdateMany/DeleteMany restricted to one id.
const (
	Create Op = iota
	CreateMany
	FindMany
	FindFirst
	UpdateMany
	DeleteMany
	FindUnique
	Update
	Delete
	Upsert
)

var opNames = [...]string{"create", "createMany", "findMany", "findFirst", "updateMany", "deleteMany", "findUnique", "update", "delete", "upsert"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}

	return "unknown"
}

// Request describes one store operation.
type Request struct {
	Op     Op
	Entity Entity

	// TenantID is the tenant the caller supplied, either as create data or
	// as a filter. For Tenant it is the id filter.
	TenantID string

	// TenantIDs holds the supplied tenant of each element of a CreateMany.
	TenantIDs []string

	// UserID is the user filter or create data on Membership operations.
	UserID string
}

// Scope is the predicate a store must apply.
type Scope struct {
	// TenantID is the enforced tenant. Empty only when Unscoped.
	TenantID string

	// Unscoped is set for platform admins and the narrow pre-resolution
	// allowances; the store must still apply its own id or user filter.
	Unscoped bool
}

// Check validates req against the tenant context in ctx and returns the
// predicate to apply. All violations wrap models.ErrForbidden.
func Check(ctx context.Context, req Request) (Scope, error) {
	tc := tenant.From(ctx)
	if tc == nil {
		return Scope{}, models.ErrTenantMissing
	}

	if tc.IsPlatformAdmin() {
		return Scope{TenantID: req.TenantID, Unscoped: req.TenantID == ""}, nil
	}

	if req.Entity == Tenant {
		return checkTenantRoot(tc, req)
	}

	if !IsTenantScoped(req.Entity) {
		return Scope{Unscoped: true}, nil
	}

	tid := tc.TenantID()
	if tid == "" {
		return checkPreResolution(tc, req)
	}

	switch req.Op {
	case Create:
		if req.TenantID != "" && req.TenantID != tid {
			return Scope{}, models.ErrTenantMismatch
		}
	case CreateMany:
		for _, supplied := range req.TenantIDs {
			if supplied != "" && supplied != tid {
				return Scope{}, models.ErrTenantMismatch
			}
		}
	case FindMany, FindFirst, UpdateMany, DeleteMany:
		if req.TenantID != "" && req.TenantID != tid {
			return Scope{}, models.ErrTenantMismatch
		}
	default:
		return Scope{}, models.ErrDirectKeyAccess
	}

	return Scope{TenantID: tid}, nil
}

// checkTenantRoot scopes operations on the tenants table itself.
func checkTenantRoot(tc *tenant.Context, req Request) (Scope, error) {
	tid := tc.TenantID()
	if tid == "" {
		if req.Op == Create {
			return Scope{Unscoped: true}, nil
		}

		return Scope{}, models.ErrTenantMissing
	}

	if req.Op == Create || req.TenantID != tid {
		return Scope{}, models.ErrTenantOutOfScope
	}

	return Scope{TenantID: tid}, nil
}

// checkPreResolution handles tenant entities before a tenant is known.
func checkPreResolution(tc *tenant.Context, req Request) (Scope, error) {
	switch req.Entity {
	case Membership:
		uid := tc.UserID()
		if uid == "" || req.UserID != uid {
			break
		}
		switch req.Op {
		case FindFirst, FindMany:
			return Scope{Unscoped: true}, nil
		case Create:
			if req.TenantID == "" {
				break
			}

			return Scope{TenantID: req.TenantID}, nil
		}
	case DataSource:
		if req.Op == FindFirst && tc.ConsumeDataSourceLookup() {
			return Scope{Unscoped: true}, nil
		}
	}

	return Scope{}, models.ErrTenantMissing
}
