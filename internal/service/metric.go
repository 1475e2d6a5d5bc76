package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/metric"
	"github.com/persistorai/cadence/internal/models"
)

// MetricStore is the data-access interface MetricService depends on.
type MetricStore interface {
	Create(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error)
	List(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error)
	Get(ctx context.Context, tenantID, id string) (*models.Metric, error)
}

// MetricCalculator evaluates a loaded metric over its dataset.
type MetricCalculator interface {
	ValueOf(ctx context.Context, tenantID string, m *models.Metric, spec daterange.Spec, now time.Time) (*models.MetricValue, error)
}

// MetricEnqueuer queues background metric evaluations.
type MetricEnqueuer interface {
	EnqueueMetric(ctx context.Context, tenantID, metricID string) (*models.Job, error)
}

var _ domain.MetricService = (*MetricService)(nil)

// MetricService manages metric definitions and evaluates them.
type MetricService struct {
	store MetricStore
	calc  MetricCalculator
	queue MetricEnqueuer
	audit AuditEnqueuer
	now   func() time.Time
}

// NewMetricService creates a MetricService.
func NewMetricService(store MetricStore, calc MetricCalculator, queue MetricEnqueuer, audit AuditEnqueuer) *MetricService {
	return &MetricService{store: store, calc: calc, queue: queue, audit: audit, now: time.Now}
}

// CreateMetric validates the definition, compiling expressions up front,
// and stores the metric against a dataset of the same tenant.
func (s *MetricService) CreateMetric(ctx context.Context, tenantID string, req models.CreateMetricRequest) (*models.Metric, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if expr, ok := req.Definition.Formula.(models.Expression); ok {
		if _, err := metric.Compile(expr.Text); err != nil {
			return nil, models.Invalid("definition.expression", err.Error())
		}
	}
	req.Name = strings.TrimSpace(req.Name)

	m, err := s.store.Create(ctx, tenantID, req)
	if err != nil {
		if errors.Is(err, models.ErrDatasetNotFound) {
			return nil, models.Invalid("datasetId", "dataset not found")
		}

		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditMetricCreated, "Metric", m.ID, map[string]any{"name": m.Name})

	return m, nil
}

// ListMetrics returns a page of metrics (pass-through).
func (s *MetricService) ListMetrics(ctx context.Context, tenantID string, p models.Page) ([]models.Metric, error) {
	return s.store.List(ctx, tenantID, p)
}

// GetMetric returns one metric (pass-through).
func (s *MetricService) GetMetric(ctx context.Context, tenantID, id string) (*models.Metric, error) {
	return s.store.Get(ctx, tenantID, id)
}

// MetricValue evaluates a metric over the requested date range.
func (s *MetricService) MetricValue(ctx context.Context, tenantID, id string, spec daterange.Spec) (*models.MetricValue, error) {
	if err := spec.Validate(); err != nil {
		return nil, models.Invalid("range", err.Error())
	}

	m, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	return s.calc.ValueOf(ctx, tenantID, m, spec, s.now())
}

// EnqueueEvaluation queues a background evaluation of an existing metric.
func (s *MetricService) EnqueueEvaluation(ctx context.Context, tenantID, id string) (*models.Job, error) {
	if _, err := s.store.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}

	return s.queue.EnqueueMetric(ctx, tenantID, id)
}
