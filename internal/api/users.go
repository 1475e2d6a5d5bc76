package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// UserHandler serves tenant membership endpoints.
type UserHandler struct {
	svc UserService
	log *logrus.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc UserService, log *logrus.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: log}
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context(), tenantID(c))
	if err != nil {
		respondServiceError(c, h.log, err, "user.list")
		return
	}
	if members == nil {
		members = []models.Membership{}
	}

	c.JSON(http.StatusOK, members)
}

// Add handles POST /api/v1/users.
func (h *UserHandler) Add(c *gin.Context) {
	var req models.AddMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.svc.AddMember(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "user.add")
		return
	}

	c.JSON(http.StatusCreated, m)
}

// UpdateRole handles PATCH /api/v1/users/:userId/role.
func (h *UserHandler) UpdateRole(c *gin.Context) {
	userID := pathID(c, "userId")
	if userID == "" {
		return
	}

	var req models.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.svc.UpdateRole(c.Request.Context(), tenantID(c), userID, req)
	if err != nil {
		respondServiceError(c, h.log, err, "user.update_role")
		return
	}

	c.JSON(http.StatusOK, m)
}

// Remove handles DELETE /api/v1/users/:userId.
func (h *UserHandler) Remove(c *gin.Context) {
	userID := pathID(c, "userId")
	if userID == "" {
		return
	}

	if err := h.svc.RemoveMember(c.Request.Context(), tenantID(c), userID); err != nil {
		respondServiceError(c, h.log, err, "user.remove")
		return
	}

	c.Status(http.StatusNoContent)
}
