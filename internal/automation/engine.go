// Package automation evaluates threshold rules over metrics once per time
// window and delivers the triggered actions.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/models"
)

// DefaultInterval is the evaluation window when none is configured.
const DefaultInterval = 5 * time.Minute

// RuleStore is the persistence the engine depends on.
type RuleStore interface {
	GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error)
	ListRules(ctx context.Context, tenantID string, status models.RuleStatus, p models.Page) ([]models.AutomationRule, error)
	FindRun(ctx context.Context, tenantID, ruleID string, windowStart time.Time) (*models.AutomationRun, error)
	InsertRun(ctx context.Context, tenantID string, run models.AutomationRun) (*models.AutomationRun, error)
	MarkRunFailed(ctx context.Context, tenantID, runID, reason string) error
}

// MetricValuer computes the current value of a stored metric.
type MetricValuer interface {
	Value(ctx context.Context, tenantID, metricID string, spec daterange.Spec, now time.Time) (*models.MetricValue, error)
}

// Notifier fans a notification out to every member of a tenant.
type Notifier interface {
	Send(ctx context.Context, tenantID string, n models.NewNotification) (models.FanoutResult, error)
}

// Deliverer posts a triggered rule to an external endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, target string, p WebhookPayload) error
}

// Engine evaluates automation rules.
type Engine struct {
	rules    RuleStore
	values   MetricValuer
	notifier Notifier
	hooks    Deliverer
	interval time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

// NewEngine creates an Engine whose windows are interval long.
func NewEngine(rules RuleStore, values MetricValuer, notifier Notifier, hooks Deliverer, interval time.Duration, log *logrus.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Engine{
		rules:    rules,
		values:   values,
		notifier: notifier,
		hooks:    hooks,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Window returns the evaluation window containing now. Windows are aligned
// to the Unix epoch so every process derives the same boundaries.
func Window(now time.Time, interval time.Duration) (start, end time.Time) {
	ms := interval.Milliseconds()
	if ms <= 0 {
		ms = DefaultInterval.Milliseconds()
	}

	startMs := now.UnixMilli() / ms * ms
	start = time.UnixMilli(startMs).UTC()

	return start, start.Add(time.Duration(ms) * time.Millisecond)
}

// EvaluateRule runs ruleID at most once for the current window. A window
// that was already evaluated returns the recorded run with Skipped set.
func (e *Engine) EvaluateRule(ctx context.Context, tenantID, ruleID string) (*models.RunOutcome, error) {
	rule, err := e.rules.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}

	return e.evaluate(ctx, tenantID, rule)
}

// EvaluateTenant evaluates every enabled rule of the tenant in turn. A rule
// that errors is logged and reported in its outcome; the sweep continues.
func (e *Engine) EvaluateTenant(ctx context.Context, tenantID string) ([]models.RunOutcome, error) {
	rules, err := e.rules.ListRules(ctx, tenantID, models.RuleEnabled, models.Page{})
	if err != nil {
		return nil, fmt.Errorf("listing enabled rules: %w", err)
	}

	outcomes := make([]models.RunOutcome, 0, len(rules))
	for i := range rules {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		out, err := e.evaluate(ctx, tenantID, &rules[i])
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"rule_id":   rules[i].ID,
			}).Warn("automation rule evaluation failed")
			outcomes = append(outcomes, models.RunOutcome{Error: err.Error()})

			continue
		}

		outcomes = append(outcomes, *out)
	}

	return outcomes, nil
}

func (e *Engine) evaluate(ctx context.Context, tenantID string, rule *models.AutomationRule) (*models.RunOutcome, error) {
	start, end := Window(e.now(), e.interval)

	existing, err := e.rules.FindRun(ctx, tenantID, rule.ID, start)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.AutomationRuns.WithLabelValues(string(existing.Status), "skipped").Inc()
		return &models.RunOutcome{Run: existing, Triggered: existing.Result.Triggered, Skipped: true}, nil
	}

	run := models.AutomationRun{
		RuleID:      rule.ID,
		Status:      models.RunSuccess,
		WindowStart: start,
		WindowEnd:   end,
		Result: models.RunResult{
			Operator:  rule.Condition.Operator,
			Threshold: rule.Condition.Threshold,
		},
	}

	v, err := e.values.Value(ctx, tenantID, rule.MetricID, rule.Condition.Spec, e.now())
	switch {
	case errors.Is(err, models.ErrMetricNotFound):
		run.Status = models.RunFailed
		run.Error = err.Error()
	case err != nil:
		return nil, fmt.Errorf("evaluating metric for rule %s: %w", rule.ID, err)
	default:
		run.Result.Value = v.Value
		run.Result.Triggered = rule.Condition.Holds(v.Value)
	}

	stored, err := e.rules.InsertRun(ctx, tenantID, run)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			return e.lostRace(ctx, tenantID, rule.ID, start)
		}

		return nil, err
	}

	out := &models.RunOutcome{Run: stored, Triggered: run.Result.Triggered}

	if run.Result.Triggered {
		if reason := e.act(ctx, tenantID, rule, run.Result.Value); reason != "" {
			if err := e.rules.MarkRunFailed(ctx, tenantID, stored.ID, reason); err != nil {
				return nil, fmt.Errorf("recording failed delivery: %w", err)
			}
			stored.Status = models.RunFailed
			stored.Error = reason
		}
	}

	outcome := "not_triggered"
	if run.Result.Triggered {
		outcome = "triggered"
	}
	metrics.AutomationRuns.WithLabelValues(string(stored.Status), outcome).Inc()

	e.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"rule_id":   rule.ID,
		"status":    stored.Status,
		"triggered": run.Result.Triggered,
	}).Debug("automation rule evaluated")

	return out, nil
}

// lostRace returns the run that another evaluator recorded first.
func (e *Engine) lostRace(ctx context.Context, tenantID, ruleID string, start time.Time) (*models.RunOutcome, error) {
	winner, err := e.rules.FindRun(ctx, tenantID, ruleID, start)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("run for rule %s vanished after conflict: %w", ruleID, models.ErrDuplicateKey)
	}

	metrics.AutomationRuns.WithLabelValues(string(winner.Status), "skipped").Inc()

	return &models.RunOutcome{Run: winner, Triggered: winner.Result.Triggered, Skipped: true}, nil
}

// act delivers the rule's action and returns a failure reason, or "" on
// success. Notification fan-out is best effort and never fails the run.
func (e *Engine) act(ctx context.Context, tenantID string, rule *models.AutomationRule, value float64) string {
	a := rule.Action
	formatted := strconv.FormatFloat(value, 'f', -1, 64)

	switch a.Type {
	case models.ActionInApp, models.ActionEmail:
		body := "Rule triggered with value " + formatted
		typ := models.NotifyInApp
		if a.Type == models.ActionEmail {
			body = "Email alert for value " + formatted
			typ = models.NotifyEmail
		}

		n := models.NewNotification{Type: typ, Title: orDefault(a.Title, rule.Name), Body: orDefault(a.Message, body)}
		if _, err := e.notifier.Send(ctx, tenantID, n); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"rule_id":   rule.ID,
			}).Warn("automation notification fan-out failed")
		}

	case models.ActionWebhook:
		if a.Target == "" {
			return "Webhook target missing"
		}

		err := e.hooks.Deliver(ctx, a.Target, WebhookPayload{RuleID: rule.ID, MetricValue: value, Triggered: true})
		if err != nil {
			return err.Error()
		}
	}

	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
