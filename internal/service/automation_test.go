package service

import (
	"context"
	"errors"
	"testing"

	"github.com/persistorai/cadence/internal/models"
)

func validRule() models.CreateRuleRequest {
	return models.CreateRuleRequest{
		Name:      "Revenue drop",
		MetricID:  "m1",
		Condition: models.Condition{Operator: models.OpLt, Threshold: 100},
		Action:    models.Action{Type: models.ActionInApp},
	}
}

func TestAutomationService_CreateRule(t *testing.T) {
	q := &mockAuditQueue{}
	svc := NewAutomationService(&mockRuleStore{}, &mockEvaluator{}, &mockScheduler{}, q)

	r, err := svc.CreateRule(context.Background(), "t1", validRule())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID != "rule-1" {
		t.Errorf("id = %q", r.ID)
	}
	if acts := q.actions(); len(acts) != 1 || acts[0] != models.AuditAutomationCreated {
		t.Errorf("audit actions = %v", acts)
	}
}

func TestAutomationService_CreateRule_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.CreateRuleRequest)
		storeErr  error
		wantField string
	}{
		{name: "webhook without target", mutate: func(r *models.CreateRuleRequest) {
			r.Action = models.Action{Type: models.ActionWebhook}
		}, wantField: "action.target"},
		{name: "unknown operator", mutate: func(r *models.CreateRuleRequest) {
			r.Condition.Operator = "between"
		}, wantField: "condition.operator"},
		{name: "metric of another tenant", storeErr: models.ErrMetricNotFound, wantField: "metricId"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAutomationService(&mockRuleStore{createErr: tc.storeErr}, &mockEvaluator{}, &mockScheduler{}, nil)
			req := validRule()
			if tc.mutate != nil {
				tc.mutate(&req)
			}

			_, err := svc.CreateRule(context.Background(), "t1", req)
			wantInvalid(t, err, tc.wantField)
		})
	}
}

func TestAutomationService_ListAndStatus(t *testing.T) {
	store := &mockRuleStore{status: "sentinel"}
	q := &mockAuditQueue{}
	svc := NewAutomationService(store, &mockEvaluator{}, &mockScheduler{}, q)
	ctx := context.Background()

	if _, err := svc.ListRules(ctx, "t1", models.NewPage(1, 20)); err != nil {
		t.Fatal(err)
	}
	if store.status != "" {
		t.Errorf("listing filtered by status %q", store.status)
	}

	_, err := svc.SetRuleStatus(ctx, "t1", "rule-1", models.UpdateRuleStatusRequest{Status: "PAUSED"})
	wantInvalid(t, err, "status")

	r, err := svc.SetRuleStatus(ctx, "t1", "rule-1", models.UpdateRuleStatusRequest{Status: models.RuleDisabled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != models.RuleDisabled {
		t.Errorf("status = %q", r.Status)
	}
	if acts := q.actions(); len(acts) != 1 || acts[0] != models.AuditAutomationUpdated {
		t.Errorf("audit actions = %v", acts)
	}
}

func TestAutomationService_RunRule(t *testing.T) {
	svc := NewAutomationService(&mockRuleStore{}, &mockEvaluator{}, &mockScheduler{}, nil)
	ctx := context.Background()

	first, err := svc.RunRule(ctx, "t1", "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.RunRule(ctx, "t1", "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Skipped || !second.Skipped {
		t.Errorf("skipped = %v/%v, want false/true", first.Skipped, second.Skipped)
	}
}

func TestAutomationService_EnqueueRun(t *testing.T) {
	sched := &mockScheduler{}
	svc := NewAutomationService(&mockRuleStore{}, &mockEvaluator{}, sched, nil)
	ctx := context.Background()

	job, err := svc.EnqueueRun(ctx, "t1", "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Queue != models.QueueAutomation || job.TenantID != "t1" {
		t.Errorf("job = %+v", job)
	}

	if _, err := svc.EnqueueRun(ctx, "t1", "missing"); !errors.Is(err, models.ErrRuleNotFound) {
		t.Errorf("err = %v, want ErrRuleNotFound", err)
	}
	if len(sched.rules) != 1 || sched.rules[0] != "rule-1" {
		t.Errorf("queued rules = %v, want [rule-1]", sched.rules)
	}
}
