package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/models"
)

// TenantHandler serves onboarding and the caller's tenant overview.
type TenantHandler struct {
	svc TenantService
	log *logrus.Logger
}

// NewTenantHandler creates a TenantHandler.
func NewTenantHandler(svc TenantService, log *logrus.Logger) *TenantHandler {
	return &TenantHandler{svc: svc, log: log}
}

// Create handles POST /api/v1/tenants. The caller becomes its OWNER.
func (h *TenantHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthenticated")
		return
	}

	var req models.CreateTenantRequest
	if !bindJSON(c, &req) {
		return
	}

	t, err := h.svc.Provision(c.Request.Context(), user, req)
	if err != nil {
		respondServiceError(c, h.log, err, "tenant.create")
		return
	}

	c.JSON(http.StatusCreated, t)
}

// Me handles GET /api/v1/tenants/me.
func (h *TenantHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthenticated")
		return
	}

	ov, err := h.svc.Overview(c.Request.Context(), user)
	if err != nil {
		respondServiceError(c, h.log, err, "tenant.me")
		return
	}

	c.JSON(http.StatusOK, ov)
}
