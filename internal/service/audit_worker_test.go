package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestAuditWorker_ProcessesJob(t *testing.T) {
	auditor := &mockAuditor{}

	aw := NewAuditWorker(auditor, testLogger(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	go aw.Run(ctx)

	aw.Enqueue(&AuditJob{
		TenantID:   "t1",
		Action:     models.AuditDatasetCreated,
		EntityType: "Dataset",
		EntityID:   "d1",
	})

	time.Sleep(50 * time.Millisecond)
	cancel()

	calls := auditor.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 audit call, got %d", len(calls))
	}
	if calls[0].Action != models.AuditDatasetCreated {
		t.Errorf("action = %q, want %q", calls[0].Action, models.AuditDatasetCreated)
	}
	if calls[0].EntityID != "d1" {
		t.Errorf("entity_id = %q, want %q", calls[0].EntityID, "d1")
	}

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	if len(auditor.tenants) != 1 || auditor.tenants[0] != "t1" {
		t.Errorf("audit ran under tenant contexts %v, want [t1]", auditor.tenants)
	}
}

func TestAuditWorker_DropsWhenFull(t *testing.T) {
	auditor := &mockAuditor{}

	// Queue size 2, don't start the worker so it can't drain.
	aw := NewAuditWorker(auditor, testLogger(), 2)

	aw.Enqueue(&AuditJob{Action: "a"})
	aw.Enqueue(&AuditJob{Action: "b"})

	done := make(chan struct{})
	go func() {
		aw.Enqueue(&AuditJob{Action: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked when queue was full")
	}

	if len(aw.jobs) != 2 {
		t.Errorf("queue len = %d, want 2", len(aw.jobs))
	}
}

func TestAuditWorker_StopDrains(t *testing.T) {
	auditor := &mockAuditor{}

	aw := NewAuditWorker(auditor, testLogger(), 100)

	for i := range 5 {
		aw.Enqueue(&AuditJob{TenantID: "t1", Action: "drain", EntityID: strconv.Itoa(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		aw.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run didn't return after cancel")
	}

	calls := auditor.getCalls()
	if len(calls) != 5 {
		t.Errorf("expected 5 drained audit calls, got %d", len(calls))
	}
}

func TestAudit_AttributesCaller(t *testing.T) {
	q := &mockAuditQueue{}
	tc := tenant.New("req-1")
	tc.SetUser("user-1", false)
	ctx := tenant.With(context.Background(), tc)

	audit(ctx, q, "t1", models.AuditMetricCreated, "Metric", "m1", nil)
	audit(ctx, nil, "t1", models.AuditMetricCreated, "Metric", "m2", nil)

	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(q.jobs))
	}
	if q.jobs[0].Actor != "user-1" {
		t.Errorf("actor = %q, want user-1", q.jobs[0].Actor)
	}
}
