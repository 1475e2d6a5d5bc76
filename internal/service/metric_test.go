package service

import (
	"context"
	"errors"
	"testing"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
)

func newMetricFixture() (*MetricService, *mockCalculator, *mockScheduler, *mockAuditQueue) {
	store := &mockMetricStore{
		create: func(_ context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error) {
			if req.DatasetID != "d1" {
				return nil, models.ErrDatasetNotFound
			}
			return &models.Metric{ID: "m1", TenantID: tenantID, Name: req.Name, DatasetID: req.DatasetID, Definition: req.Definition}, nil
		},
		get: func(_ context.Context, tenantID, id string) (*models.Metric, error) {
			if id != "m1" {
				return nil, models.ErrMetricNotFound
			}
			return &models.Metric{ID: id, TenantID: tenantID}, nil
		},
	}
	calc := &mockCalculator{value: 12.5}
	sched := &mockScheduler{}
	q := &mockAuditQueue{}

	return NewMetricService(store, calc, sched, q), calc, sched, q
}

func expression(text string) models.MetricDefinition {
	return models.MetricDefinition{Formula: models.Expression{Text: text}}
}

func TestMetricService_CreateMetric(t *testing.T) {
	tests := []struct {
		name      string
		req       models.CreateMetricRequest
		wantField string
	}{
		{name: "aggregation", req: models.CreateMetricRequest{
			Name: "Revenue", DatasetID: "d1",
			Definition: models.MetricDefinition{Formula: models.Aggregation{Op: models.AggSum, Field: "amount"}},
		}},
		{name: "expression", req: models.CreateMetricRequest{
			Name: "AOV", DatasetID: "d1", Definition: expression("sum(amount) / count()"),
		}},
		{name: "bad expression", req: models.CreateMetricRequest{
			Name: "Broken", DatasetID: "d1", Definition: expression("sum(amount) +"),
		}, wantField: "definition.expression"},
		{name: "dataset of another tenant", req: models.CreateMetricRequest{
			Name: "Revenue", DatasetID: "d2",
			Definition: models.MetricDefinition{Formula: models.Aggregation{Op: models.AggCount}},
		}, wantField: "datasetId"},
		{name: "no formula", req: models.CreateMetricRequest{Name: "Empty", DatasetID: "d1"}, wantField: "definition"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _, q := newMetricFixture()

			m, err := svc.CreateMetric(context.Background(), "t1", tc.req)
			if tc.wantField != "" {
				wantInvalid(t, err, tc.wantField)
				if len(q.jobs) != 0 {
					t.Error("audited a rejected metric")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.ID != "m1" {
				t.Errorf("id = %q", m.ID)
			}
			if acts := q.actions(); len(acts) != 1 || acts[0] != models.AuditMetricCreated {
				t.Errorf("audit actions = %v", acts)
			}
		})
	}
}

func TestMetricService_MetricValue(t *testing.T) {
	svc, calc, _, _ := newMetricFixture()
	ctx := context.Background()

	v, err := svc.MetricValue(ctx, "t1", "m1", daterange.Spec{Range: "last7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Value != 12.5 || calc.spec.Range != "last7" {
		t.Errorf("value = %+v, spec = %+v", v, calc.spec)
	}

	_, err = svc.MetricValue(ctx, "t1", "m1", daterange.Spec{Range: daterange.Custom, Start: "2024-05-02", End: "2024-05-01"})
	wantInvalid(t, err, "range")

	if _, err := svc.MetricValue(ctx, "t1", "nope", daterange.Spec{}); !errors.Is(err, models.ErrMetricNotFound) {
		t.Fatalf("err = %v, want ErrMetricNotFound", err)
	}
}

func TestMetricService_EnqueueEvaluation(t *testing.T) {
	svc, _, sched, _ := newMetricFixture()
	ctx := context.Background()

	job, err := svc.EnqueueEvaluation(ctx, "t1", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Queue != models.QueueMetrics || len(sched.metrics) != 1 {
		t.Errorf("job = %+v, enqueued = %v", job, sched.metrics)
	}

	if _, err := svc.EnqueueEvaluation(ctx, "t1", "nope"); !errors.Is(err, models.ErrMetricNotFound) {
		t.Fatalf("err = %v, want ErrMetricNotFound", err)
	}
	if len(sched.metrics) != 1 {
		t.Error("enqueued an evaluation for a missing metric")
	}
}
