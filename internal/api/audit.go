package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// AuditHandler serves audit log endpoints.
type AuditHandler struct {
	repo AuditService
	log  *logrus.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(repo AuditService, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, log: log}
}

// Query handles GET /api/v1/audit-logs.
func (h *AuditHandler) Query(c *gin.Context) {
	q := models.AuditQuery{
		Action:     c.Query("action"),
		EntityType: c.Query("entityType"),
		Page:       parsePage(c),
	}

	entries, hasMore, err := h.repo.QueryAudit(c.Request.Context(), tenantID(c), q)
	if err != nil {
		respondServiceError(c, h.log, err, "audit.query")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     entries,
		"page":     q.Page.Number,
		"pageSize": q.Page.Size,
		"hasMore":  hasMore,
	})
}
