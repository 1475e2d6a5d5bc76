// Package ingest turns raw CSV, webhook and polled REST payloads into
// schema-typed dataset records.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
)

// Mapping is the per-source configuration applied to every raw record.
type Mapping struct {
	Fields    map[string]string // source field -> schema field
	Schema    models.DatasetSchema
	DateField string // overrides Schema.DateField when set
}

// MapResult holds the accepted records and one message per rejected row.
type MapResult struct {
	Records []models.NewRecord
	Errors  []string
}

// Map applies m to raw. It never fails on malformed rows: a row without a
// usable date is reported in Errors and dropped.
func Map(raw []map[string]any, m Mapping) MapResult {
	dateField := m.DateField
	if dateField == "" {
		dateField = m.Schema.DateField
	}

	res := MapResult{Records: make([]models.NewRecord, 0, len(raw)), Errors: []string{}}
	for i, row := range raw {
		data := mapRow(row, m)

		eventTime, ok := eventTimeOf(data[dateField])
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: invalid date field", i+1))
			continue
		}

		res.Records = append(res.Records, models.NewRecord{EventTime: eventTime, Data: data})
	}

	return res
}

func mapRow(row map[string]any, m Mapping) map[string]any {
	data := make(map[string]any, len(m.Schema.Fields)+len(m.Fields))

	for src, dst := range m.Fields {
		if v, ok := row[src]; ok {
			data[dst] = v
		}
	}

	for name := range m.Schema.Fields {
		if _, ok := data[name]; ok {
			continue
		}
		if v, ok := row[name]; ok {
			data[name] = v
		}
	}

	for name, typ := range m.Schema.Fields {
		if v, ok := data[name]; ok {
			data[name] = Coerce(v, typ)
		}
	}

	return data
}

func eventTimeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := daterange.ParseTime(t)
		return parsed, err == nil
	}

	return time.Time{}, false
}

// Coerce converts v to the declared field type. Values that cannot be
// converted are returned unchanged; nil stays nil. A blank number is 0.
func Coerce(v any, typ models.FieldType) any {
	if v == nil {
		return nil
	}

	switch typ {
	case models.FieldNumber:
		return coerceNumber(v)
	case models.FieldBoolean:
		return coerceBool(v)
	case models.FieldDate:
		return coerceDate(v)
	}

	return v
}

func coerceNumber(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1.0
		}
		return 0.0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0.0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return v
		}
		return n
	}

	return v
}

func coerceBool(v any) any {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	}

	return true
}

func coerceDate(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := daterange.ParseTime(t); err == nil {
			return parsed
		}
	case float64:
		// Epoch milliseconds.
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			return time.UnixMilli(int64(t)).UTC()
		}
	}

	return v
}
