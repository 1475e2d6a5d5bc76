package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/persistorai/cadence/internal/models"
)

// AutomationKey is the repeating job key of a tenant's automation sweep.
func AutomationKey(tenantID string) string { return "automation:" + tenantID }

// ETLKey is the repeating job key of a data source's REST poll.
func ETLKey(dataSourceID string) string { return "etl:" + dataSourceID }

// nextBoundary returns the first multiple of interval after now, so that
// every process aligns repeating jobs to the same grid.
func nextBoundary(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

func (s *Scheduler) payload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding job payload: %w", err)
	}

	return b, nil
}

// RegisterTenant asserts the repeating automation sweep of tenantID.
func (s *Scheduler) RegisterTenant(ctx context.Context, tenantID string) error {
	p, err := s.payload(models.AutomationJobPayload{TenantID: tenantID})
	if err != nil {
		return err
	}

	_, err = s.jobs.UpsertRepeating(ctx, models.Job{
		Queue:       models.QueueAutomation,
		Key:         AutomationKey(tenantID),
		TenantID:    tenantID,
		Payload:     p,
		Interval:    s.cfg.AutomationInterval,
		MaxAttempts: s.cfg.MaxAttempts,
	}, nextBoundary(s.now(), s.cfg.AutomationInterval))

	return err
}

// RegisterDataSource asserts the repeating poll of a REST_POLL data source,
// replacing any earlier registration. Other source types have their poll
// removed, which covers a source whose type changed.
func (s *Scheduler) RegisterDataSource(ctx context.Context, ds models.DataSource) error {
	if ds.Type != models.SourceRESTPoll {
		return s.RemoveDataSource(ctx, ds.ID)
	}

	p, err := s.payload(models.ETLJobPayload{TenantID: ds.TenantID, DataSourceID: ds.ID})
	if err != nil {
		return err
	}

	_, err = s.jobs.UpsertRepeating(ctx, models.Job{
		Queue:       models.QueueETL,
		Key:         ETLKey(ds.ID),
		TenantID:    ds.TenantID,
		Payload:     p,
		Interval:    s.cfg.ETLInterval,
		MaxAttempts: s.cfg.MaxAttempts,
	}, nextBoundary(s.now(), s.cfg.ETLInterval))

	return err
}

// RemoveDataSource cancels the repeating poll of a data source.
func (s *Scheduler) RemoveDataSource(ctx context.Context, dataSourceID string) error {
	_, err := s.jobs.RemoveByKey(ctx, ETLKey(dataSourceID))
	return err
}

func (s *Scheduler) enqueue(ctx context.Context, queue models.JobQueue, tenantID string, v any) (*models.Job, error) {
	p, err := s.payload(v)
	if err != nil {
		return nil, err
	}

	return s.jobs.Enqueue(ctx, models.Job{
		Queue:       queue,
		TenantID:    tenantID,
		Payload:     p,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}

// EnqueueRuleRun queues a one-off evaluation of a single rule.
func (s *Scheduler) EnqueueRuleRun(ctx context.Context, tenantID, ruleID string) (*models.Job, error) {
	return s.enqueue(ctx, models.QueueAutomation, tenantID, models.AutomationJobPayload{TenantID: tenantID, RuleID: ruleID})
}

// EnqueueMetric queues a background evaluation of a metric.
func (s *Scheduler) EnqueueMetric(ctx context.Context, tenantID, metricID string) (*models.Job, error) {
	return s.enqueue(ctx, models.QueueMetrics, tenantID, models.MetricJobPayload{TenantID: tenantID, MetricID: metricID})
}

// EnqueueNotification queues a single in-app notification for one user.
func (s *Scheduler) EnqueueNotification(ctx context.Context, tenantID, userID, title, body string) (*models.Job, error) {
	return s.enqueue(ctx, models.QueueNotifications, tenantID, models.NotificationJobPayload{
		TenantID: tenantID,
		UserID:   userID,
		Title:    title,
		Body:     body,
	})
}

// TenantLister enumerates every tenant.
type TenantLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// SourceLister enumerates data sources of one type across tenants.
type SourceLister interface {
	ListByType(ctx context.Context, typ models.DataSourceType) ([]models.DataSource, error)
}

// Bootstrap re-asserts the automation sweep of every tenant and the poll of
// every REST_POLL data source. It runs under the platform-admin identity.
func (s *Scheduler) Bootstrap(ctx context.Context, tenants TenantLister, sources SourceLister) error {
	ctx = systemCtx(ctx)

	ids, err := tenants.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}
	for _, id := range ids {
		if err := s.RegisterTenant(ctx, id); err != nil {
			return fmt.Errorf("registering tenant %s: %w", id, err)
		}
	}

	polled, err := sources.ListByType(ctx, models.SourceRESTPoll)
	if err != nil {
		return fmt.Errorf("listing REST_POLL sources: %w", err)
	}
	for _, ds := range polled {
		if err := s.RegisterDataSource(ctx, ds); err != nil {
			return fmt.Errorf("registering data source %s: %w", ds.ID, err)
		}
	}

	s.log.WithField("tenants", len(ids)).WithField("data_sources", len(polled)).Info("repeating jobs registered")

	return nil
}
