package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/middleware"
)

// AuthHandler exchanges an identity token for an internal session token.
type AuthHandler struct {
	tokens SessionIssuer
	log    *logrus.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tokens SessionIssuer, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, log: log}
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// CreateSession handles POST /api/v1/auth/session.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	tc := middleware.TenantContext(c)
	if tc == nil || tc.UserID() == "" {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthenticated")
		return
	}

	token, err := h.tokens.IssueSession(tc.UserID(), tc.TenantID(), tc.Role(), tc.IsPlatformAdmin())
	if err != nil {
		h.log.WithError(err).Error("issuing session token")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "auth.session", "user_id": tc.UserID(), "tenant_id": tc.TenantID()}).Info("audit")

	c.JSON(http.StatusOK, sessionResponse{Token: token, ExpiresIn: int(h.tokens.SessionTTL().Seconds())})
}
