// Package metric computes scalar metric values over dataset records.
package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/persistorai/cadence/internal/models"
)

// Evaluate computes def over records. The caller restricts records to the
// wanted dataset and window. Non-finite results are normalized to 0.
func Evaluate(def models.MetricDefinition, records []models.DatasetRecord) (float64, error) {
	filtered := Filter(records, def.Filters)

	var v float64
	switch f := def.Formula.(type) {
	case models.Expression:
		prog, err := Compile(f.Text)
		if err != nil {
			return 0, err
		}
		v = prog.Run(filtered)
	case models.Aggregation:
		v = Aggregate(filtered, f.Op, f.Field)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported formula %T", f)
	}

	return finite(v), nil
}

// Run evaluates the program against an already filtered record set.
func (p *Program) Run(records []models.DatasetRecord) float64 {
	cache := make(map[string]float64)

	return finite(p.root.eval(func(op models.AggregationOp, field string) float64 {
		key := string(op) + "\x00" + field
		if v, ok := cache[key]; ok {
			return v
		}
		v := Aggregate(records, op, field)
		cache[key] = v

		return v
	}))
}

// Filter keeps the records satisfying every filter.
func Filter(records []models.DatasetRecord, filters []models.Filter) []models.DatasetRecord {
	if len(filters) == 0 {
		return records
	}

	out := make([]models.DatasetRecord, 0, len(records))
	for _, r := range records {
		if matchesAll(r.Data, filters) {
			out = append(out, r)
		}
	}

	return out
}

func matchesAll(data map[string]any, filters []models.Filter) bool {
	for _, f := range filters {
		if !matches(data[f.Field], f) {
			return false
		}
	}

	return true
}

func matches(value any, f models.Filter) bool {
	switch f.Op {
	case models.OpEq:
		return strictEqual(value, f.Value)
	case models.OpNeq:
		return !strictEqual(value, f.Value)
	}

	l, lok := ToNumber(value)
	r, rok := ToNumber(f.Value)
	if !lok || !rok {
		return false
	}

	switch f.Op {
	case models.OpGt:
		return l > r
	case models.OpGte:
		return l >= r
	case models.OpLt:
		return l < r
	case models.OpLte:
		return l <= r
	}

	return false
}

// strictEqual compares without cross-type coercion; numbers compare by value
// regardless of their Go representation.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, ok := numeric(a); ok {
		bn, ok := numeric(b)
		return ok && an == bn
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	return false
}

// numeric returns v as float64 if v already holds a Go number.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}

	return 0, false
}

// ToNumber coerces v to a finite number. Numeric strings parse; booleans are
// 1 or 0; empty strings are 0; anything else is not a number.
func ToNumber(v any) (float64, bool) {
	if n, ok := numeric(v); ok {
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	}

	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}

		return n, true
	case bool:
		if t {
			return 1, true
		}

		return 0, true
	}

	return 0, false
}

// Aggregate computes op over field. count without a field counts every
// record; count with a field counts records where the field is present.
// sum and avg skip values that do not coerce to finite numbers.
func Aggregate(records []models.DatasetRecord, op models.AggregationOp, field string) float64 {
	if op == models.AggCount {
		if field == "" {
			return float64(len(records))
		}

		n := 0
		for _, r := range records {
			if _, ok := r.Data[field]; ok {
				n++
			}
		}

		return float64(n)
	}

	var total float64
	var n int
	for _, r := range records {
		v, ok := r.Data[field]
		if !ok || v == nil {
			continue
		}
		if f, ok := ToNumber(v); ok {
			total += f
			n++
		}
	}

	if op == models.AggAvg {
		if n == 0 {
			return 0
		}

		return finite(total / float64(n))
	}

	return finite(total)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}
