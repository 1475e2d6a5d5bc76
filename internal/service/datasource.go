package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// DataSourceStore is the data-access interface DataSourceService depends on.
type DataSourceStore interface {
	Create(ctx context.Context, tenantID string, req models.CreateDataSourceRequest) (*models.DataSource, error)
	List(ctx context.Context, tenantID string, p models.Page) ([]models.DataSource, error)
	Get(ctx context.Context, tenantID, id string) (*models.DataSource, error)
	Update(ctx context.Context, tenantID, id string, req models.UpdateDataSourceRequest) (*models.DataSource, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// DatasetGetter loads a dataset of a tenant.
type DatasetGetter interface {
	Get(ctx context.Context, tenantID, id string) (*models.Dataset, error)
}

// PollScheduler registers and cancels repeating REST polls.
type PollScheduler interface {
	RegisterDataSource(ctx context.Context, ds models.DataSource) error
	RemoveDataSource(ctx context.Context, dataSourceID string) error
}

var _ domain.DataSourceService = (*DataSourceService)(nil)

// DataSourceService manages data source configuration and keeps the poll
// schedule of REST_POLL sources in step with it.
type DataSourceService struct {
	store     DataSourceStore
	datasets  DatasetGetter
	scheduler PollScheduler
	audit     AuditEnqueuer
	log       *logrus.Logger
}

// NewDataSourceService creates a DataSourceService.
func NewDataSourceService(
	store DataSourceStore, datasets DatasetGetter, scheduler PollScheduler, audit AuditEnqueuer, log *logrus.Logger,
) *DataSourceService {
	return &DataSourceService{store: store, datasets: datasets, scheduler: scheduler, audit: audit, log: log}
}

// requireDataset rejects a config pointing at a dataset outside the tenant.
func (s *DataSourceService) requireDataset(ctx context.Context, tenantID, datasetID string) error {
	if _, err := s.datasets.Get(ctx, tenantID, datasetID); err != nil {
		if errors.Is(err, models.ErrDatasetNotFound) {
			return models.Invalid("config.datasetId", "dataset not found")
		}

		return err
	}

	return nil
}

// CreateDataSource stores a data source and, for REST_POLL, schedules its poll.
func (s *DataSourceService) CreateDataSource(ctx context.Context, tenantID string, req models.CreateDataSourceRequest) (*models.DataSource, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireDataset(ctx, tenantID, req.Config.DatasetID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)

	ds, err := s.store.Create(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	s.schedule(ctx, *ds)
	audit(ctx, s.audit, tenantID, models.AuditDataSourceCreated, "DataSource", ds.ID,
		map[string]any{"type": ds.Type})

	out := ds.Redacted()

	return &out, nil
}

// ListDataSources returns a page of redacted data sources.
func (s *DataSourceService) ListDataSources(ctx context.Context, tenantID string, p models.Page) ([]models.DataSource, error) {
	list, err := s.store.List(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	for i := range list {
		list[i] = list[i].Redacted()
	}

	return list, nil
}

// GetDataSource returns one redacted data source.
func (s *DataSourceService) GetDataSource(ctx context.Context, tenantID, id string) (*models.DataSource, error) {
	ds, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	out := ds.Redacted()

	return &out, nil
}

// UpdateDataSource applies a partial update and re-registers the poll.
func (s *DataSourceService) UpdateDataSource(
	ctx context.Context, tenantID, id string, req models.UpdateDataSourceRequest,
) (*models.DataSource, error) {
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(existing.Type); err != nil {
		return nil, err
	}
	if req.Config != nil {
		if err := s.requireDataset(ctx, tenantID, req.Config.DatasetID); err != nil {
			return nil, err
		}
	}

	ds, err := s.store.Update(ctx, tenantID, id, req)
	if err != nil {
		return nil, err
	}

	s.schedule(ctx, *ds)
	audit(ctx, s.audit, tenantID, models.AuditDataSourceUpdated, "DataSource", ds.ID, nil)

	out := ds.Redacted()

	return &out, nil
}

// DeleteDataSource removes a data source and cancels its poll.
func (s *DataSourceService) DeleteDataSource(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	if err := s.scheduler.RemoveDataSource(ctx, id); err != nil {
		s.log.WithError(err).WithField("data_source_id", id).Warn("cancelling poll schedule failed")
	}

	audit(ctx, s.audit, tenantID, models.AuditDataSourceDeleted, "DataSource", id, nil)

	return nil
}

func (s *DataSourceService) schedule(ctx context.Context, ds models.DataSource) {
	if err := s.scheduler.RegisterDataSource(ctx, ds); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id":      ds.TenantID,
			"data_source_id": ds.ID,
		}).Warn("registering poll schedule failed")
	}
}
