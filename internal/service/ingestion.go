package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/ingest"
	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/models"
)

// SourceFinder loads data sources, including the unscoped webhook lookup.
type SourceFinder interface {
	Get(ctx context.Context, tenantID, id string) (*models.DataSource, error)
	FindForWebhook(ctx context.Context, id string) (*models.DataSource, error)
}

// RecordAppender loads datasets and appends mapped records to them.
type RecordAppender interface {
	Get(ctx context.Context, tenantID, id string) (*models.Dataset, error)
	AppendRecords(ctx context.Context, tenantID, datasetID string, records []models.NewRecord) (int, error)
}

// IngestionLogStore records and lists ingestion attempts.
type IngestionLogStore interface {
	Create(ctx context.Context, tenantID, dataSourceID string, status models.IngestionStatus, message string, summary models.IngestionSummary) (*models.IngestionLog, error)
	List(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error)
}

// Fetcher polls a REST endpoint for raw records.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) ([]map[string]any, error)
}

// ReplayGuard claims a key once within a TTL.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// WebhookConfig bounds webhook acceptance.
type WebhookConfig struct {
	ReplayTTL          time.Duration
	TimestampTolerance time.Duration
}

// ingestion messages per entry point: with row errors, without.
type messages struct{ partial, complete, failed string }

var (
	uploadMessages  = messages{"Partial ingestion with errors", "Ingestion complete", "Ingestion failed"}
	webhookMessages = messages{"Webhook ingestion with errors", "Webhook ingestion complete", "Webhook ingestion failed"}
	pollMessages    = messages{"REST poll with errors", "REST poll complete", "REST poll failed"}
	etlMessages     = messages{"ETL poll with errors", "ETL poll complete", "ETL poll failed"}
)

var _ domain.IngestionService = (*IngestionService)(nil)

// IngestionService maps raw payloads onto datasets and logs every attempt.
type IngestionService struct {
	sources  SourceFinder
	datasets RecordAppender
	logs     IngestionLogStore
	fetcher  Fetcher
	replay   ReplayGuard
	webhook  WebhookConfig
	log      *logrus.Logger
	now      func() time.Time
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(
	sources SourceFinder, datasets RecordAppender, logs IngestionLogStore,
	fetcher Fetcher, replay ReplayGuard, webhook WebhookConfig, log *logrus.Logger,
) *IngestionService {
	if webhook.ReplayTTL <= 0 {
		webhook.ReplayTTL = 300 * time.Second
	}
	if webhook.TimestampTolerance <= 0 {
		webhook.TimestampTolerance = 300 * time.Second
	}

	return &IngestionService{
		sources:  sources,
		datasets: datasets,
		logs:     logs,
		fetcher:  fetcher,
		replay:   replay,
		webhook:  webhook,
		log:      log,
		now:      time.Now,
	}
}

func requireType(ds *models.DataSource, typ models.DataSourceType) error {
	if ds.Type != typ {
		return models.Invalid("type", fmt.Sprintf("data source is not %s", typ))
	}

	return nil
}

// Upload ingests a manual CSV upload into a CSV data source.
func (s *IngestionService) Upload(ctx context.Context, tenantID, dataSourceID, contentType string, body []byte) (*models.IngestionResult, error) {
	ds, err := s.sources.Get(ctx, tenantID, dataSourceID)
	if err != nil {
		return nil, err
	}
	if err := requireType(ds, models.SourceCSV); err != nil {
		return nil, err
	}

	raw, err := ingest.ParseUpload(contentType, body)
	if err != nil {
		if errors.Is(err, ingest.ErrNoRecords) {
			return nil, models.Invalid("records", "No records provided")
		}

		return nil, models.Invalid("body", err.Error())
	}

	return s.ingest(ctx, ds, raw, uploadMessages)
}

// Webhook authenticates and ingests one webhook delivery. ctx must carry a
// webhook tenant context; the data source lookup binds it to the source's
// tenant. The signature is verified before the replay key is claimed so a
// forged request cannot burn a legitimate delivery id.
func (s *IngestionService) Webhook(ctx context.Context, d domain.WebhookDelivery) (*models.IngestionResult, error) {
	ds, err := s.sources.FindForWebhook(ctx, d.DataSourceID)
	if err != nil {
		return nil, err
	}
	if err := requireType(ds, models.SourceWebhook); err != nil {
		return nil, err
	}

	if d.ID == "" {
		return nil, models.Invalid(ingest.HeaderWebhookID, "missing webhook id")
	}

	ts, err := ingest.ParseTimestamp(d.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := ingest.CheckFreshness(ts, s.now(), s.webhook.TimestampTolerance); err != nil {
		return nil, err
	}

	if secret := ds.Config.WebhookSecret; secret != "" {
		if err := ingest.VerifySignature(secret, d.Timestamp, d.Body, d.Signature); err != nil {
			return nil, err
		}
	}

	claimed, err := s.replay.Claim(ctx, ingest.ReplayKey(ds.ID, d.ID), s.webhook.ReplayTTL)
	if err != nil {
		return nil, fmt.Errorf("claiming webhook id: %w", err)
	}
	if !claimed {
		return nil, models.ErrDuplicateWebhook
	}

	raw, err := ingest.ParseJSON(d.Body)
	if err != nil {
		return nil, models.Invalid("body", err.Error())
	}

	return s.ingest(ctx, ds, raw, webhookMessages)
}

// Poll fetches and ingests a REST_POLL data source on demand.
func (s *IngestionService) Poll(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionResult, error) {
	ds, err := s.sources.Get(ctx, tenantID, dataSourceID)
	if err != nil {
		return nil, err
	}
	if err := requireType(ds, models.SourceRESTPoll); err != nil {
		return nil, err
	}

	res, _, err := s.poll(ctx, ds, pollMessages)

	return res, err
}

// PollScheduled runs the repeating poll of a data source. A source that was
// deleted or is no longer REST_POLL is skipped with a nil log.
func (s *IngestionService) PollScheduled(ctx context.Context, tenantID, dataSourceID string) (*models.IngestionLog, error) {
	ds, err := s.sources.Get(ctx, tenantID, dataSourceID)
	if err != nil {
		if errors.Is(err, models.ErrDataSourceNotFound) {
			return nil, nil
		}

		return nil, err
	}
	if ds.Type != models.SourceRESTPoll {
		return nil, nil
	}

	_, entry, err := s.poll(ctx, ds, etlMessages)

	return entry, err
}

// poll fetches the source's endpoint. A fetch failure is logged as a FAILED
// ingestion and returned so that scheduled polls are retried.
func (s *IngestionService) poll(ctx context.Context, ds *models.DataSource, msg messages) (*models.IngestionResult, *models.IngestionLog, error) {
	raw, err := s.fetcher.Fetch(ctx, ds.Config.RESTEndpoint)
	if err != nil {
		summary := models.IngestionSummary{Errors: []string{err.Error()}}
		if _, lerr := s.logs.Create(ctx, ds.TenantID, ds.ID, models.IngestionFailed, msg.failed, summary); lerr != nil {
			s.log.WithError(lerr).WithField("data_source_id", ds.ID).Warn("writing ingestion log failed")
		}
		metrics.IngestedRecords.WithLabelValues(string(ds.Type), "fetch_failed").Inc()

		return nil, nil, err
	}

	return s.ingestLogged(ctx, ds, raw, msg)
}

func (s *IngestionService) ingest(ctx context.Context, ds *models.DataSource, raw []map[string]any, msg messages) (*models.IngestionResult, error) {
	res, _, err := s.ingestLogged(ctx, ds, raw, msg)

	return res, err
}

// ingestLogged maps raw onto the source's dataset, appends the accepted
// records and writes the ingestion log. The attempt succeeds when at least
// one record was stored.
func (s *IngestionService) ingestLogged(
	ctx context.Context, ds *models.DataSource, raw []map[string]any, msg messages,
) (*models.IngestionResult, *models.IngestionLog, error) {
	dataset, err := s.datasets.Get(ctx, ds.TenantID, ds.Config.DatasetID)
	if err != nil {
		return nil, nil, err
	}

	mapped := ingest.Map(raw, ingest.Mapping{
		Fields:    ds.Config.FieldMapping,
		Schema:    dataset.Schema,
		DateField: ds.Config.DateField,
	})

	stored, err := s.datasets.AppendRecords(ctx, ds.TenantID, dataset.ID, mapped.Records)
	if err != nil {
		return nil, nil, fmt.Errorf("storing records: %w", err)
	}

	status := models.IngestionFailed
	if len(mapped.Records) > 0 {
		status = models.IngestionSuccess
	}
	message := msg.complete
	if len(mapped.Errors) > 0 {
		message = msg.partial
	}

	entry, err := s.logs.Create(ctx, ds.TenantID, ds.ID, status, message, models.IngestionSummary{
		Total:    len(raw),
		Ingested: stored,
		Errors:   mapped.Errors,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("writing ingestion log: %w", err)
	}

	metrics.IngestedRecords.WithLabelValues(string(ds.Type), "ingested").Add(float64(stored))
	metrics.IngestedRecords.WithLabelValues(string(ds.Type), "rejected").Add(float64(len(mapped.Errors)))

	s.log.WithFields(logrus.Fields{
		"tenant_id":      ds.TenantID,
		"data_source_id": ds.ID,
		"ingested":       stored,
		"rejected":       len(mapped.Errors),
	}).Debug("ingestion finished")

	return &models.IngestionResult{Ingested: stored, Errors: mapped.Errors}, entry, nil
}

// ListLogs returns a page of the tenant's ingestion logs (pass-through).
func (s *IngestionService) ListLogs(ctx context.Context, tenantID string, q models.IngestionLogQuery) ([]models.IngestionLog, error) {
	return s.logs.List(ctx, tenantID, q)
}
