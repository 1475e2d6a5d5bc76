package service

import (
	"context"
	"errors"
	"strings"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// RuleStore is the data-access interface AutomationService depends on.
type RuleStore interface {
	CreateRule(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error)
	ListRules(ctx context.Context, tenantID string, status models.RuleStatus, p models.Page) ([]models.AutomationRule, error)
	GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error)
	SetRuleStatus(ctx context.Context, tenantID, id string, status models.RuleStatus) (*models.AutomationRule, error)
	ListRuns(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error)
}

// RuleEvaluator runs a rule for the current window.
type RuleEvaluator interface {
	EvaluateRule(ctx context.Context, tenantID, ruleID string) (*models.RunOutcome, error)
}

// RuleEnqueuer queues background rule runs.
type RuleEnqueuer interface {
	EnqueueRuleRun(ctx context.Context, tenantID, ruleID string) (*models.Job, error)
}

var _ domain.AutomationService = (*AutomationService)(nil)

// AutomationService manages automation rules and runs them on demand.
type AutomationService struct {
	store  RuleStore
	engine RuleEvaluator
	queue  RuleEnqueuer
	audit  AuditEnqueuer
}

// NewAutomationService creates an AutomationService.
func NewAutomationService(store RuleStore, engine RuleEvaluator, queue RuleEnqueuer, audit AuditEnqueuer) *AutomationService {
	return &AutomationService{store: store, engine: engine, queue: queue, audit: audit}
}

// CreateRule validates and stores a rule over a metric of the same tenant.
func (s *AutomationService) CreateRule(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)

	r, err := s.store.CreateRule(ctx, tenantID, req)
	if err != nil {
		if errors.Is(err, models.ErrMetricNotFound) {
			return nil, models.Invalid("metricId", "metric not found")
		}

		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditAutomationCreated, "AutomationRule", r.ID,
		map[string]any{"action": r.Action.Type})

	return r, nil
}

// ListRules returns a page of rules in any status.
func (s *AutomationService) ListRules(ctx context.Context, tenantID string, p models.Page) ([]models.AutomationRule, error) {
	return s.store.ListRules(ctx, tenantID, "", p)
}

// GetRule returns one rule (pass-through).
func (s *AutomationService) GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	return s.store.GetRule(ctx, tenantID, id)
}

// SetRuleStatus enables or disables scheduled evaluation of a rule.
func (s *AutomationService) SetRuleStatus(
	ctx context.Context, tenantID, id string, req models.UpdateRuleStatusRequest,
) (*models.AutomationRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r, err := s.store.SetRuleStatus(ctx, tenantID, id, req.Status)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditAutomationUpdated, "AutomationRule", r.ID,
		map[string]any{"status": r.Status})

	return r, nil
}

// RunRule evaluates a rule now. Within one window the rule runs once;
// later calls return the recorded run as skipped.
func (s *AutomationService) RunRule(ctx context.Context, tenantID, id string) (*models.RunOutcome, error) {
	return s.engine.EvaluateRule(ctx, tenantID, id)
}

// EnqueueRun queues a background run of an existing rule. The worker applies
// the same once-per-window rule as RunRule.
func (s *AutomationService) EnqueueRun(ctx context.Context, tenantID, id string) (*models.Job, error) {
	if _, err := s.store.GetRule(ctx, tenantID, id); err != nil {
		return nil, err
	}

	return s.queue.EnqueueRuleRun(ctx, tenantID, id)
}

// ListRuns returns a page of runs, optionally for one rule (pass-through).
func (s *AutomationService) ListRuns(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error) {
	return s.store.ListRuns(ctx, tenantID, q)
}
