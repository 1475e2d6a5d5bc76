package service

import (
	"context"
	"strings"
	"time"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// DatasetStore is the data-access interface DatasetService depends on.
type DatasetStore interface {
	Create(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error)
	List(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error)
	Get(ctx context.Context, tenantID, id string) (*models.Dataset, error)
	AppendRecords(ctx context.Context, tenantID, datasetID string, records []models.NewRecord) (int, error)
	RecordsInWindow(ctx context.Context, tenantID, datasetID string, win daterange.Window, p models.Page) ([]models.DatasetRecord, error)
}

var _ domain.DatasetService = (*DatasetService)(nil)

// DatasetService manages datasets and reads their records.
type DatasetService struct {
	store DatasetStore
	audit AuditEnqueuer
	now   func() time.Time
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(store DatasetStore, audit AuditEnqueuer) *DatasetService {
	return &DatasetService{store: store, audit: audit, now: time.Now}
}

// CreateDataset validates and stores a dataset.
func (s *DatasetService) CreateDataset(ctx context.Context, tenantID string, req models.CreateDatasetRequest) (*models.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)

	d, err := s.store.Create(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	audit(ctx, s.audit, tenantID, models.AuditDatasetCreated, "Dataset", d.ID, map[string]any{"name": d.Name})

	return d, nil
}

// ListDatasets returns a page of datasets (pass-through).
func (s *DatasetService) ListDatasets(ctx context.Context, tenantID string, p models.Page) ([]models.Dataset, error) {
	return s.store.List(ctx, tenantID, p)
}

// GetDataset returns one dataset (pass-through).
func (s *DatasetService) GetDataset(ctx context.Context, tenantID, id string) (*models.Dataset, error) {
	return s.store.Get(ctx, tenantID, id)
}

// ListRecords returns a page of the dataset's records whose event time
// falls in the resolved range, newest first.
func (s *DatasetService) ListRecords(
	ctx context.Context, tenantID, datasetID string, spec daterange.Spec, p models.Page,
) ([]models.DatasetRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, models.Invalid("range", err.Error())
	}
	if _, err := s.store.Get(ctx, tenantID, datasetID); err != nil {
		return nil, err
	}

	return s.store.RecordsInWindow(ctx, tenantID, datasetID, daterange.Resolve(spec, s.now()), p)
}
