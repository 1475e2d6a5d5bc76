package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/store"
	"github.com/persistorai/cadence/internal/tenant"
)

func TestRecordAndQuery(t *testing.T) {
	f := setupTenant(t)
	as := store.NewAuditStore(f.base)

	err := as.RecordAudit(f.ctx, f.tenantID, models.AuditDatasetCreated, "dataset", "ds-1", f.userID,
		map[string]any{"name": "sales"})
	if err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}

	entries, hasMore, err := as.QueryAudit(f.ctx, f.tenantID, models.AuditQuery{
		Action: models.AuditDatasetCreated,
		Page:   models.Page{Number: 1, Size: 10},
	})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("QueryAudit returned %d entries, want 1", len(entries))
	}
	if hasMore {
		t.Error("hasMore = true, want false")
	}

	e := entries[0]
	if e.ActorUserID != f.userID {
		t.Errorf("ActorUserID = %q, want %q", e.ActorUserID, f.userID)
	}
	if e.EntityID != "ds-1" {
		t.Errorf("EntityID = %q, want ds-1", e.EntityID)
	}
	if e.Meta["name"] != "sales" {
		t.Errorf("Meta[name] = %v, want sales", e.Meta["name"])
	}
}

func TestQueryAudit_HasMore(t *testing.T) {
	f := setupTenant(t)
	as := store.NewAuditStore(f.base)

	for i := 0; i < 3; i++ {
		if err := as.RecordAudit(f.ctx, f.tenantID, models.AuditMetricCreated, "metric", "m", "", nil); err != nil {
			t.Fatalf("RecordAudit: %v", err)
		}
	}

	entries, hasMore, err := as.QueryAudit(f.ctx, f.tenantID, models.AuditQuery{Page: models.Page{Number: 1, Size: 2}})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(entries) != 2 || !hasMore {
		t.Errorf("got %d entries hasMore=%v, want 2 and true", len(entries), hasMore)
	}
	if entries[0].ActorUserID != "" {
		t.Errorf("system entry actor = %q, want empty", entries[0].ActorUserID)
	}
}

func TestQueryAudit_OtherTenantEmpty(t *testing.T) {
	a := setupTenant(t)
	b := setupTenant(t)
	as := store.NewAuditStore(a.base)

	if err := as.RecordAudit(a.ctx, a.tenantID, models.AuditTenantCreated, "tenant", a.tenantID, a.userID, nil); err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}

	entries, _, err := as.QueryAudit(b.ctx, b.tenantID, models.AuditQuery{
		Action: models.AuditTenantCreated,
		Page:   models.Page{Number: 1, Size: 10},
	})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("tenant B sees %d audit entries of tenant A", len(entries))
	}

	if err := as.RecordAudit(b.ctx, a.tenantID, "X", "tenant", "t", "", nil); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("recording into another tenant err = %v, want ErrForbidden", err)
	}
}

func TestPurgeOldEntries(t *testing.T) {
	f := setupTenant(t)
	_, tdb := newBase(t)
	as := store.NewAuditStore(f.base)

	// Insert an entry then backdate it via the owner connection.
	if err := as.RecordAudit(f.ctx, f.tenantID, models.AuditDashboardCreated, "dashboard", "old", "", nil); err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}
	_, err := tdb.Admin.Exec(context.Background(),
		"UPDATE audit_logs SET created_at = NOW() - INTERVAL '100 days' WHERE tenant_id = $1 AND entity_id = 'old'", f.tenantID)
	if err != nil {
		t.Fatalf("backdating entry: %v", err)
	}

	if _, err := as.PurgeOldEntries(f.ctx, 90); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("tenant purge err = %v, want ErrForbidden", err)
	}

	admin := tenant.With(context.Background(), tenant.ForPlatformAdmin("purge"))
	deleted, err := as.PurgeOldEntries(admin, 90)
	if err != nil {
		t.Fatalf("PurgeOldEntries: %v", err)
	}
	if deleted < 1 {
		t.Errorf("deleted = %d, want at least 1", deleted)
	}

	entries, _, err := as.QueryAudit(f.ctx, f.tenantID, models.AuditQuery{Page: models.Page{Number: 1, Size: 10}})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	for _, e := range entries {
		if e.EntityID == "old" {
			t.Error("old entry survived purge")
		}
	}
}
