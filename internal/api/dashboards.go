package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// DashboardHandler serves dashboard endpoints. Visibility rules for
// VIEWERs are applied by the service.
type DashboardHandler struct {
	svc DashboardService
	log *logrus.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(svc DashboardService, log *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{svc: svc, log: log}
}

// List handles GET /api/v1/dashboards.
func (h *DashboardHandler) List(c *gin.Context) {
	p := parsePage(c)

	dashboards, err := h.svc.ListDashboards(c.Request.Context(), tenantID(c), viewer(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "dashboard.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(dashboards, p))
}

// Create handles POST /api/v1/dashboards.
func (h *DashboardHandler) Create(c *gin.Context) {
	var req models.CreateDashboardRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.svc.CreateDashboard(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "dashboard.create")
		return
	}

	c.JSON(http.StatusCreated, d)
}

// Get handles GET /api/v1/dashboards/:id.
func (h *DashboardHandler) Get(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	d, err := h.svc.GetDashboard(c.Request.Context(), tenantID(c), id, viewer(c))
	if err != nil {
		respondServiceError(c, h.log, err, "dashboard.get")
		return
	}

	c.JSON(http.StatusOK, d)
}

// Update handles PATCH /api/v1/dashboards/:id.
func (h *DashboardHandler) Update(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	var req models.UpdateDashboardRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.svc.UpdateDashboard(c.Request.Context(), tenantID(c), id, viewer(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "dashboard.update")
		return
	}

	c.JSON(http.StatusOK, d)
}

// Share handles POST /api/v1/dashboards/:id/share.
func (h *DashboardHandler) Share(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	var req models.ShareDashboardRequest
	if !bindJSON(c, &req) {
		return
	}

	perm, err := h.svc.ShareDashboard(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "dashboard.share")
		return
	}

	c.JSON(http.StatusOK, perm)
}
