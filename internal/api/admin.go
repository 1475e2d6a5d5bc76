package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// AdminHandler serves platform-admin endpoints.
type AdminHandler struct {
	repo AdminService
	log  *logrus.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(repo AdminService, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, log: log}
}

// Tenants handles GET /api/v1/admin/tenants.
func (h *AdminHandler) Tenants(c *gin.Context) {
	p := parsePage(c)

	tenants, err := h.repo.ListTenants(c.Request.Context(), p)
	if err != nil {
		respondServiceError(c, h.log, err, "admin.tenants")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "admin.tenants", "user_id": viewer(c).UserID, "count": len(tenants)}).Info("audit")

	c.JSON(http.StatusOK, models.NewPageResult(tenants, p))
}

// Users handles GET /api/v1/admin/users.
func (h *AdminHandler) Users(c *gin.Context) {
	p := parsePage(c)

	users, err := h.repo.ListUsers(c.Request.Context(), p)
	if err != nil {
		respondServiceError(c, h.log, err, "admin.users")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "admin.users", "user_id": viewer(c).UserID, "count": len(users)}).Info("audit")

	c.JSON(http.StatusOK, models.NewPageResult(users, p))
}

// Jobs handles GET /api/v1/admin/jobs?queue=&state=&limit=.
func (h *AdminHandler) Jobs(c *gin.Context) {
	q := models.JobRunQuery{
		Queue: models.JobQueue(c.Query("queue")),
		State: models.JobState(c.Query("state")),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be an integer")
			return
		}
		q.Limit = n
	}

	runs, err := h.repo.ListJobRuns(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, h.log, err, "admin.jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
