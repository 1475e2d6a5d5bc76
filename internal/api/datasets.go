package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// DatasetHandler serves dataset endpoints.
type DatasetHandler struct {
	svc DatasetService
	log *logrus.Logger
}

// NewDatasetHandler creates a DatasetHandler.
func NewDatasetHandler(svc DatasetService, log *logrus.Logger) *DatasetHandler {
	return &DatasetHandler{svc: svc, log: log}
}

// List handles GET /api/v1/datasets.
func (h *DatasetHandler) List(c *gin.Context) {
	p := parsePage(c)

	datasets, err := h.svc.ListDatasets(c.Request.Context(), tenantID(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "dataset.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(datasets, p))
}

// Create handles POST /api/v1/datasets.
func (h *DatasetHandler) Create(c *gin.Context) {
	var req models.CreateDatasetRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.svc.CreateDataset(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "dataset.create")
		return
	}

	c.JSON(http.StatusCreated, d)
}

// Get handles GET /api/v1/datasets/:id.
func (h *DatasetHandler) Get(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	d, err := h.svc.GetDataset(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "dataset.get")
		return
	}

	c.JSON(http.StatusOK, d)
}

// Records handles GET /api/v1/datasets/:id/records.
func (h *DatasetHandler) Records(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}
	p := parsePage(c)

	records, err := h.svc.ListRecords(c.Request.Context(), tenantID(c), id, parseRange(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "dataset.records")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(records, p))
}
