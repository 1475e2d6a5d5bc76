package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// AutomationStore provides data access for automation rules and their runs.
type AutomationStore struct {
	Base
}

// NewAutomationStore creates an AutomationStore.
func NewAutomationStore(base Base) *AutomationStore {
	return &AutomationStore{Base: base}
}

const (
	ruleColumns = `id, tenant_id, name, metric_id, condition, action, status, created_at, updated_at`
	runColumns  = `id, tenant_id, rule_id, status, window_start, window_end, result, coalesce(error, ''), created_at`

	runWindowConstraint = "automation_runs_window_key"
)

func scanRule(scan func(dest ...any) error) (*models.AutomationRule, error) {
	var r models.AutomationRule
	var cond, action []byte
	if err := scan(&r.ID, &r.TenantID, &r.Name, &r.MetricID, &cond, &action, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cond, &r.Condition); err != nil {
		return nil, fmt.Errorf("decoding rule %s condition: %w", r.ID, err)
	}
	if err := json.Unmarshal(action, &r.Action); err != nil {
		return nil, fmt.Errorf("decoding rule %s action: %w", r.ID, err)
	}

	return &r, nil
}

func scanRun(scan func(dest ...any) error) (*models.AutomationRun, error) {
	var r models.AutomationRun
	var result []byte
	if err := scan(&r.ID, &r.TenantID, &r.RuleID, &r.Status, &r.WindowStart, &r.WindowEnd, &result, &r.Error, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &r.Result); err != nil {
		return nil, fmt.Errorf("decoding run %s result: %w", r.ID, err)
	}

	return &r, nil
}

// CreateRule inserts a rule. The metric must belong to the same tenant.
func (s *AutomationStore) CreateRule(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.AutomationRule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(req.MetricID, models.ErrMetricNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.Create, guard.AutomationRule, tenantID)
	if err != nil {
		return nil, err
	}

	cond, err := json.Marshal(req.Condition)
	if err != nil {
		return nil, fmt.Errorf("encoding condition: %w", err)
	}
	action, err := json.Marshal(req.Action)
	if err != nil {
		return nil, fmt.Errorf("encoding action: %w", err)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	r, err := scanRule(tx.QueryRow(ctx, `
		INSERT INTO automation_rules (tenant_id, name, metric_id, condition, action, status)
		SELECT $1, $2, m.id, $4, $5, $6 FROM metrics m WHERE m.id = $3 AND m.tenant_id = $1
		RETURNING `+ruleColumns,
		sc.TenantID, req.Name, req.MetricID, cond, action, req.Status).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrMetricNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing rule: %w", err)
	}

	return r, nil
}

// ListRules returns a page of the tenant's rules, newest first. A non-empty
// status filters by status.
func (s *AutomationStore) ListRules(ctx context.Context, tenantID string, status models.RuleStatus, p models.Page) ([]models.AutomationRule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.AutomationRule, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	if status != "" {
		w.eq("status", status)
	}

	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE ` + w.String() + ` ORDER BY created_at DESC`
	if p.Size > 0 {
		query += ` LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())
	}

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, *r)
	}

	return out, rows.Err()
}

// GetRule returns one rule of the tenant.
func (s *AutomationStore) GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrRuleNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.AutomationRule, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)

	r, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrRuleNotFound)
	}

	return r, nil
}

// SetRuleStatus enables or disables a rule.
func (s *AutomationStore) SetRuleStatus(ctx context.Context, tenantID, id string, status models.RuleStatus) (*models.AutomationRule, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrRuleNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.AutomationRule, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)
	statusArg := w.next(status)

	r, err := scanRule(tx.QueryRow(ctx,
		`UPDATE automation_rules SET status = `+statusArg+`, updated_at = now() WHERE `+w.String()+` RETURNING `+ruleColumns,
		w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrRuleNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing rule status: %w", err)
	}

	return r, nil
}

// FindRun returns the run of ruleID for the window starting at windowStart,
// or nil when the window has not been evaluated.
func (s *AutomationStore) FindRun(ctx context.Context, tenantID, ruleID string, windowStart time.Time) (*models.AutomationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindFirst, guard.AutomationRun, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("rule_id", ruleID)
	w.eq("window_start", windowStart)

	r, err := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM automation_runs WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding run: %w", err)
	}

	return r, nil
}

// InsertRun records a run. A second run for the same rule and window fails
// with models.ErrDuplicateKey; the database constraint decides the winner.
func (s *AutomationStore) InsertRun(ctx context.Context, tenantID string, run models.AutomationRun) (*models.AutomationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.AutomationRun, tenantID)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(run.Result)
	if err != nil {
		return nil, fmt.Errorf("encoding run result: %w", err)
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var runErr *string
	if run.Error != "" {
		runErr = &run.Error
	}

	r, err := scanRun(tx.QueryRow(ctx, `
		INSERT INTO automation_runs (tenant_id, rule_id, status, window_start, window_end, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+runColumns,
		sc.TenantID, run.RuleID, run.Status, run.WindowStart, run.WindowEnd, result, runErr).Scan)
	if err != nil {
		if dbpool.IsUniqueViolation(err, runWindowConstraint) {
			return nil, models.ErrDuplicateKey
		}

		return nil, fmt.Errorf("inserting run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}

	return r, nil
}

// MarkRunFailed flips a recorded run to FAILED with the delivery error.
func (s *AutomationStore) MarkRunFailed(ctx context.Context, tenantID, runID, reason string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(runID, models.ErrRunNotFound); err != nil {
		return err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.AutomationRun, tenantID)
	if err != nil {
		return err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", runID)
	statusArg := w.next(models.RunFailed)
	errArg := w.next(reason)

	tag, err := tx.Exec(ctx,
		`UPDATE automation_runs SET status = `+statusArg+`, error = `+errArg+` WHERE `+w.String(), w.args...)
	if err != nil {
		return fmt.Errorf("marking run failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrRunNotFound
	}

	return tx.Commit(ctx)
}

// ListRuns returns the tenant's runs matching q, newest window first.
func (s *AutomationStore) ListRuns(ctx context.Context, tenantID string, q models.RunQuery) ([]models.AutomationRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.AutomationRun, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	if q.RuleID != "" {
		if err := validID(q.RuleID, models.ErrRuleNotFound); err != nil {
			return nil, err
		}
		w.eq("rule_id", q.RuleID)
	}

	query := `SELECT ` + runColumns + ` FROM automation_runs WHERE ` + w.String() +
		` ORDER BY window_start DESC, created_at DESC LIMIT ` + w.next(q.Page.Size) + ` OFFSET ` + w.next(q.Page.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationRun
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, *r)
	}

	return out, rows.Err()
}
