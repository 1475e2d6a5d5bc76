package metric

import (
	"context"
	"fmt"
	"time"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
)

// Definitions loads metric definitions.
type Definitions interface {
	Get(ctx context.Context, tenantID, id string) (*models.Metric, error)
}

// RecordSource reads the records of a dataset within a window.
type RecordSource interface {
	RecordsInWindow(ctx context.Context, tenantID, datasetID string, win daterange.Window, p models.Page) ([]models.DatasetRecord, error)
}

// Calculator evaluates stored metrics over stored records.
type Calculator struct {
	defs    Definitions
	records RecordSource
}

// NewCalculator creates a Calculator.
func NewCalculator(defs Definitions, records RecordSource) *Calculator {
	return &Calculator{defs: defs, records: records}
}

// Value loads the metric and evaluates it over the records in the window
// resolved from spec at now.
func (c *Calculator) Value(ctx context.Context, tenantID, metricID string, spec daterange.Spec, now time.Time) (*models.MetricValue, error) {
	m, err := c.defs.Get(ctx, tenantID, metricID)
	if err != nil {
		return nil, err
	}

	return c.ValueOf(ctx, tenantID, m, spec, now)
}

// ValueOf evaluates an already loaded metric.
func (c *Calculator) ValueOf(ctx context.Context, tenantID string, m *models.Metric, spec daterange.Spec, now time.Time) (*models.MetricValue, error) {
	win := daterange.Resolve(spec, now)

	records, err := c.records.RecordsInWindow(ctx, tenantID, m.DatasetID, win, models.Page{})
	if err != nil {
		return nil, fmt.Errorf("loading records for metric %s: %w", m.ID, err)
	}

	v, err := Evaluate(m.Definition, records)
	if err != nil {
		return nil, fmt.Errorf("evaluating metric %s: %w", m.ID, err)
	}

	return &models.MetricValue{
		MetricID: m.ID,
		Value:    v,
		Start:    win.Start,
		End:      win.End,
		Records:  len(records),
	}, nil
}
