package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AggregationOp is a plain aggregation over one field.
type AggregationOp string

// Supported aggregations.
const (
	AggSum   AggregationOp = "sum"
	AggAvg   AggregationOp = "avg"
	AggCount AggregationOp = "count"
)

// Valid reports whether op is a known aggregation.
func (op AggregationOp) Valid() bool {
	switch op {
	case AggSum, AggAvg, AggCount:
		return true
	}

	return false
}

// CompareOp is a comparison used by metric filters and rule conditions.
type CompareOp string

// Supported comparison operators.
const (
	OpEq  CompareOp = "eq"
	OpNeq CompareOp = "neq"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
)

// Valid reports whether op is a known comparison operator.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}

	return false
}

// Filter restricts the records a metric is computed over.
type Filter struct {
	Field string    `json:"field"`
	Op    CompareOp `json:"op"`
	Value any       `json:"value"`
}

// Formula is either an Aggregation or an Expression.
type Formula interface {
	isFormula()
}

// Aggregation computes sum, avg or count over a field.
type Aggregation struct {
	Op    AggregationOp
	Field string
}

// Expression is arithmetic over aggregate calls such as "sum(amount) / count()".
type Expression struct {
	Text string
}

func (Aggregation) isFormula() {}
func (Expression) isFormula()  {}

// MetricDefinition is the validated, typed form of a metric's computation.
type MetricDefinition struct {
	Formula Formula
	Filters []Filter

	ambiguous bool
}

type metricDefinitionJSON struct {
	Expression  string        `json:"expression,omitempty"`
	Aggregation AggregationOp `json:"aggregation,omitempty"`
	Field       string        `json:"field,omitempty"`
	Filters     []Filter      `json:"filters,omitempty"`
}

// MarshalJSON writes the flat wire shape.
func (d MetricDefinition) MarshalJSON() ([]byte, error) {
	out := metricDefinitionJSON{Filters: d.Filters}
	switch f := d.Formula.(type) {
	case Aggregation:
		out.Aggregation = f.Op
		out.Field = f.Field
	case Expression:
		out.Expression = f.Text
	}

	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape into its variant.
func (d *MetricDefinition) UnmarshalJSON(data []byte) error {
	var in metricDefinitionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*d = MetricDefinition{Filters: in.Filters}
	hasExpr := strings.TrimSpace(in.Expression) != ""
	switch {
	case hasExpr && in.Aggregation != "":
		d.ambiguous = true
	case hasExpr:
		d.Formula = Expression{Text: in.Expression}
	case in.Aggregation != "":
		d.Formula = Aggregation{Op: in.Aggregation, Field: strings.TrimSpace(in.Field)}
	}

	return nil
}

func (d MetricDefinition) validate(is *issues) {
	switch f := d.Formula.(type) {
	case nil:
		if d.ambiguous {
			is.add("definition", "expression and aggregation are mutually exclusive")
		} else {
			is.add("definition", "provide expression or aggregation")
		}
	case Aggregation:
		if !f.Op.Valid() {
			is.add("definition.aggregation", "must be one of sum, avg, count")
		} else if f.Op != AggCount && f.Field == "" {
			is.add("definition.field", "aggregation requires field")
		}
	case Expression:
		if strings.TrimSpace(f.Text) == "" {
			is.add("definition.expression", "is required")
		}
	}

	for i, flt := range d.Filters {
		if flt.Field == "" {
			is.add("definition.filters", "filter %d: field is required", i)
		}
		if !flt.Op.Valid() {
			is.add("definition.filters", "filter %d: op must be one of eq, neq, gt, gte, lt, lte", i)
		}
	}
}

// Metric is a named computation over a dataset.
type Metric struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenantId"`
	Name       string           `json:"name"`
	DatasetID  string           `json:"datasetId"`
	Definition MetricDefinition `json:"definition"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// CreateMetricRequest is the payload for creating a metric.
type CreateMetricRequest struct {
	Name       string           `json:"name"`
	DatasetID  string           `json:"datasetId"`
	Definition MetricDefinition `json:"definition"`
}

// Validate checks the metric payload structure. Expression syntax is checked
// by the metric package when the metric is created.
func (r *CreateMetricRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)
	if r.DatasetID == "" {
		is.add("datasetId", "is required")
	}
	r.Definition.validate(&is)

	return is.err()
}

// MetricValue is an evaluated metric over a resolved window.
type MetricValue struct {
	MetricID string    `json:"metricId"`
	Value    float64   `json:"value"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Records  int       `json:"records"`
}
