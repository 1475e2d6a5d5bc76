package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/models"
)

// Per-queue worker concurrency.
const (
	ETLConcurrency           = 5
	AutomationConcurrency    = 5
	MetricsConcurrency       = 5
	NotificationsConcurrency = 10
)

// RuleRunner evaluates automation rules.
type RuleRunner interface {
	EvaluateRule(ctx context.Context, tenantID, ruleID string) (*models.RunOutcome, error)
	EvaluateTenant(ctx context.Context, tenantID string) ([]models.RunOutcome, error)
}

// Poller runs one scheduled poll of a data source. It returns a nil log
// when the source no longer exists or is not polled.
type Poller interface {
	PollScheduled(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionLog, error)
}

// MetricValuer computes the current value of a stored metric.
type MetricValuer interface {
	Value(ctx context.Context, tenantID, metricID string, spec daterange.Spec, now time.Time) (*models.MetricValue, error)
}

// NotificationWriter persists one notification.
type NotificationWriter interface {
	Create(ctx context.Context, tenantID, userID string, n models.NewNotification) (*models.Notification, error)
}

// Workers holds the domain services background jobs call into.
type Workers struct {
	Rules         RuleRunner
	Poller        Poller
	Metrics       MetricValuer
	Notifications NotificationWriter
	Log           *logrus.Logger
}

// Install registers a handler for every queue on s.
func (w *Workers) Install(s *Scheduler) {
	s.Handle(models.QueueETL, ETLConcurrency, w.etl)
	s.Handle(models.QueueAutomation, AutomationConcurrency, w.automation)
	s.Handle(models.QueueMetrics, MetricsConcurrency, w.metric)
	s.Handle(models.QueueNotifications, NotificationsConcurrency, w.notification)
}

func decode[T any](j models.Job) (T, error) {
	var p T
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding %s payload: %w", j.Queue, err)
	}

	return p, nil
}

// tenantOf prefers the tenant stored on the job row over the payload.
func tenantOf(j models.Job, payloadTenant string) string {
	if j.TenantID != "" {
		return j.TenantID
	}

	return payloadTenant
}

func (w *Workers) etl(ctx context.Context, j models.Job) error {
	p, err := decode[models.ETLJobPayload](j)
	if err != nil {
		return err
	}

	entry, err := w.Poller.PollScheduled(ctx, tenantOf(j, p.TenantID), p.DataSourceID)
	if err != nil {
		return err
	}
	if entry != nil && entry.Status == models.IngestionFailed {
		w.Log.WithFields(logrus.Fields{
			"data_source_id": p.DataSourceID,
			"tenant_id":      entry.TenantID,
		}).Warn("scheduled poll ingested no records")
	}

	return nil
}

func (w *Workers) automation(ctx context.Context, j models.Job) error {
	p, err := decode[models.AutomationJobPayload](j)
	if err != nil {
		return err
	}
	tenantID := tenantOf(j, p.TenantID)

	if p.RuleID != "" {
		_, err := w.Rules.EvaluateRule(ctx, tenantID, p.RuleID)
		return err
	}

	_, err = w.Rules.EvaluateTenant(ctx, tenantID)

	return err
}

func (w *Workers) metric(ctx context.Context, j models.Job) error {
	p, err := decode[models.MetricJobPayload](j)
	if err != nil {
		return err
	}
	tenantID := tenantOf(j, p.TenantID)

	v, err := w.Metrics.Value(ctx, tenantID, p.MetricID, daterange.Spec{}, time.Now())
	if err != nil {
		return err
	}

	metrics.MetricEvaluationRecords.Observe(float64(v.Records))
	w.Log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"metric_id": p.MetricID,
		"value":     v.Value,
		"records":   v.Records,
	}).Info("Metric evaluated")

	return nil
}

func (w *Workers) notification(ctx context.Context, j models.Job) error {
	p, err := decode[models.NotificationJobPayload](j)
	if err != nil {
		return err
	}

	_, err = w.Notifications.Create(ctx, tenantOf(j, p.TenantID), p.UserID, models.NewNotification{
		Type:  models.NotifyInApp,
		Title: p.Title,
		Body:  p.Body,
	})

	return err
}
