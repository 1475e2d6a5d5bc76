package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/ingest"
	"github.com/persistorai/cadence/internal/models"
)

// DataSourceHandler serves data source configuration and the manual
// ingestion endpoints.
type DataSourceHandler struct {
	svc    DataSourceService
	ingest IngestionService
	log    *logrus.Logger
}

// NewDataSourceHandler creates a DataSourceHandler.
func NewDataSourceHandler(svc DataSourceService, ingestion IngestionService, log *logrus.Logger) *DataSourceHandler {
	return &DataSourceHandler{svc: svc, ingest: ingestion, log: log}
}

// List handles GET /api/v1/data-sources.
func (h *DataSourceHandler) List(c *gin.Context) {
	p := parsePage(c)

	sources, err := h.svc.ListDataSources(c.Request.Context(), tenantID(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(sources, p))
}

// Create handles POST /api/v1/data-sources.
func (h *DataSourceHandler) Create(c *gin.Context) {
	var req models.CreateDataSourceRequest
	if !bindJSON(c, &req) {
		return
	}

	ds, err := h.svc.CreateDataSource(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.create")
		return
	}

	c.JSON(http.StatusCreated, ds)
}

// Get handles GET /api/v1/data-sources/:id.
func (h *DataSourceHandler) Get(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	ds, err := h.svc.GetDataSource(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.get")
		return
	}

	c.JSON(http.StatusOK, ds)
}

// Update handles PATCH /api/v1/data-sources/:id.
func (h *DataSourceHandler) Update(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	var req models.UpdateDataSourceRequest
	if !bindJSON(c, &req) {
		return
	}

	ds, err := h.svc.UpdateDataSource(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.update")
		return
	}

	c.JSON(http.StatusOK, ds)
}

// Delete handles DELETE /api/v1/data-sources/:id.
func (h *DataSourceHandler) Delete(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	if err := h.svc.DeleteDataSource(c.Request.Context(), tenantID(c), id); err != nil {
		respondServiceError(c, h.log, err, "datasource.delete")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Ingest handles POST /api/v1/data-sources/:id/ingest for CSV sources. The
// body is raw CSV text, {records: [...]} or {csv: "..."}.
func (h *DataSourceHandler) Ingest(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}

	res, err := h.ingest.Upload(c.Request.Context(), tenantID(c), id, c.ContentType(), body)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.ingest")
		return
	}

	c.JSON(http.StatusOK, res)
}

// Poll handles POST /api/v1/data-sources/:id/poll for REST_POLL sources.
func (h *DataSourceHandler) Poll(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	res, err := h.ingest.Poll(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.poll")
		return
	}

	c.JSON(http.StatusOK, res)
}

// Webhook handles POST /api/v1/webhooks/data-sources/:id. The route is
// unauthenticated; the delivery is checked against the source's secret.
func (h *DataSourceHandler) Webhook(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}

	res, err := h.ingest.Webhook(c.Request.Context(), domain.WebhookDelivery{
		DataSourceID: id,
		ID:           c.GetHeader(ingest.HeaderWebhookID),
		Timestamp:    c.GetHeader(ingest.HeaderWebhookTimestamp),
		Signature:    c.GetHeader(ingest.HeaderWebhookSignature),
		Body:         body,
	})
	if err != nil {
		respondServiceError(c, h.log, err, "datasource.webhook")
		return
	}

	c.JSON(http.StatusOK, res)
}

// Logs handles GET /api/v1/ingestion-logs.
func (h *DataSourceHandler) Logs(c *gin.Context) {
	q := models.IngestionLogQuery{
		DataSourceID: c.Query("dataSourceId"),
		Status:       models.IngestionStatus(c.Query("status")),
		Page:         parsePage(c),
	}

	logs, err := h.ingest.ListLogs(c.Request.Context(), tenantID(c), q)
	if err != nil {
		respondServiceError(c, h.log, err, "ingestion_log.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(logs, q.Page))
}

// readBody reads the raw request body. The body size middleware bounds it.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyRead))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "unable to read request body")
		return nil, false
	}

	return body, true
}
