package models

import (
	"time"

	"github.com/persistorai/cadence/internal/daterange"
)

// Condition compares a metric value against a threshold over a date range.
type Condition struct {
	Operator  CompareOp `json:"operator"`
	Threshold float64   `json:"threshold"`
	daterange.Spec
}

// Holds evaluates the condition against value.
func (c Condition) Holds(value float64) bool {
	switch c.Operator {
	case OpGt:
		return value > c.Threshold
	case OpGte:
		return value >= c.Threshold
	case OpLt:
		return value < c.Threshold
	case OpLte:
		return value <= c.Threshold
	case OpEq:
		return value == c.Threshold
	case OpNeq:
		return value != c.Threshold
	}

	return false
}

// ActionType selects how a triggered rule is delivered.
type ActionType string

// Supported rule actions.
const (
	ActionEmail   ActionType = "EMAIL"
	ActionInApp   ActionType = "IN_APP"
	ActionWebhook ActionType = "WEBHOOK"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionEmail, ActionInApp, ActionWebhook:
		return true
	}

	return false
}

// Action is what happens when a rule's condition holds.
type Action struct {
	Type    ActionType `json:"type"`
	Target  string     `json:"target,omitempty"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message,omitempty"`
}

// RuleStatus toggles scheduled evaluation of a rule.
type RuleStatus string

// Rule statuses.
const (
	RuleEnabled  RuleStatus = "ENABLED"
	RuleDisabled RuleStatus = "DISABLED"
)

// AutomationRule is a scheduled threshold check over a metric.
type AutomationRule struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Name      string     `json:"name"`
	MetricID  string     `json:"metricId"`
	Condition Condition  `json:"condition"`
	Action    Action     `json:"action"`
	Status    RuleStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CreateRuleRequest is the payload for creating an automation rule.
type CreateRuleRequest struct {
	Name      string     `json:"name"`
	MetricID  string     `json:"metricId"`
	Condition Condition  `json:"condition"`
	Action    Action     `json:"action"`
	Status    RuleStatus `json:"status,omitempty"`
}

// Validate checks the rule payload and defaults Status to ENABLED.
func (r *CreateRuleRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)
	if r.MetricID == "" {
		is.add("metricId", "is required")
	}
	if !r.Condition.Operator.Valid() {
		is.add("condition.operator", "must be one of gt, gte, lt, lte, eq, neq")
	}
	if err := r.Condition.Spec.Validate(); err != nil {
		is.add("condition.range", "%s", err.Error())
	}
	if !r.Action.Type.Valid() {
		is.add("action.type", "must be one of EMAIL, IN_APP, WEBHOOK")
	}
	if r.Action.Type == ActionWebhook && r.Action.Target == "" {
		is.add("action.target", "webhook action requires target URL")
	} else if r.Action.Target != "" && !isHTTPURL(r.Action.Target) {
		is.add("action.target", "must be a valid http(s) URL")
	}

	switch r.Status {
	case "":
		r.Status = RuleEnabled
	case RuleEnabled, RuleDisabled:
	default:
		is.add("status", "must be ENABLED or DISABLED")
	}

	return is.err()
}

// RunStatus is the terminal state of one windowed evaluation.
type RunStatus string

// Run statuses.
const (
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// RunResult is the stored outcome of a rule evaluation.
type RunResult struct {
	Triggered bool      `json:"triggered"`
	Value     float64   `json:"value"`
	Operator  CompareOp `json:"operator"`
	Threshold float64   `json:"threshold"`
}

// AutomationRun records the single evaluation of a rule for one window.
type AutomationRun struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	RuleID      string    `json:"ruleId"`
	Status      RunStatus `json:"status"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Result      RunResult `json:"result"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RunOutcome is returned by rule evaluation. Skipped is set when the
// window had already been evaluated.
type RunOutcome struct {
	Run       *AutomationRun `json:"run"`
	Triggered bool           `json:"triggered"`
	Skipped   bool           `json:"skipped,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RunQuery filters automation run listings.
type RunQuery struct {
	RuleID string
	Page   Page
}

// UpdateRuleStatusRequest enables or disables a rule.
type UpdateRuleStatusRequest struct {
	Status RuleStatus `json:"status"`
}

// Validate checks the status change payload.
func (r *UpdateRuleStatusRequest) Validate() error {
	var is issues
	if r.Status != RuleEnabled && r.Status != RuleDisabled {
		is.add("status", "must be ENABLED or DISABLED")
	}

	return is.err()
}
