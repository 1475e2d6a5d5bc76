package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	svc NotificationService
	log *logrus.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(svc NotificationService, log *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, log: log}
}

// List handles GET /api/v1/notifications?unread=true.
func (h *NotificationHandler) List(c *gin.Context) {
	p := parsePage(c)
	unread := c.Query("unread") == "true"

	items, err := h.svc.ListNotifications(c.Request.Context(), tenantID(c), viewer(c).UserID, unread, p)
	if err != nil {
		respondServiceError(c, h.log, err, "notification.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(items, p))
}

// MarkRead handles POST /api/v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	n, err := h.svc.MarkRead(c.Request.Context(), tenantID(c), viewer(c).UserID, id)
	if err != nil {
		respondServiceError(c, h.log, err, "notification.read")
		return
	}

	c.JSON(http.StatusOK, n)
}
