package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// MetricHandler serves metric definition and evaluation endpoints.
type MetricHandler struct {
	svc MetricService
	log *logrus.Logger
}

// NewMetricHandler creates a MetricHandler.
func NewMetricHandler(svc MetricService, log *logrus.Logger) *MetricHandler {
	return &MetricHandler{svc: svc, log: log}
}

// List handles GET /api/v1/metrics.
func (h *MetricHandler) List(c *gin.Context) {
	p := parsePage(c)

	metrics, err := h.svc.ListMetrics(c.Request.Context(), tenantID(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "metric.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(metrics, p))
}

// Create handles POST /api/v1/metrics.
func (h *MetricHandler) Create(c *gin.Context) {
	var req models.CreateMetricRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.svc.CreateMetric(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "metric.create")
		return
	}

	c.JSON(http.StatusCreated, m)
}

// Get handles GET /api/v1/metrics/:id.
func (h *MetricHandler) Get(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	m, err := h.svc.GetMetric(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "metric.get")
		return
	}

	c.JSON(http.StatusOK, m)
}

// Value handles GET /api/v1/metrics/:id/value?range=last7.
func (h *MetricHandler) Value(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	v, err := h.svc.MetricValue(c.Request.Context(), tenantID(c), id, parseRange(c))
	if err != nil {
		respondServiceError(c, h.log, err, "metric.value")
		return
	}

	c.JSON(http.StatusOK, v)
}

// Evaluate handles POST /api/v1/metrics/:id/evaluate by queueing a
// background evaluation.
func (h *MetricHandler) Evaluate(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	job, err := h.svc.EnqueueEvaluation(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "metric.evaluate")
		return
	}

	c.JSON(http.StatusAccepted, job)
}
