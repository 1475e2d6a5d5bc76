package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// MembershipFinder loads a user's own membership before the tenant is known.
type MembershipFinder interface {
	FindForUser(ctx context.Context, userID string) (*models.Membership, error)
}

// ResolveTenant binds the request to the authenticated user's earliest
// membership. Users without a membership continue unbound so that they can
// onboard.
func ResolveTenant(members MembershipFinder, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := TenantContext(c)
		if tc == nil || tc.UserID() == "" {
			respondError(c, http.StatusUnauthorized, codeUnauthorized, "unauthenticated")
			return
		}

		m, err := members.FindForUser(c.Request.Context(), tc.UserID())
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"request_id": c.GetString(RequestIDKey),
				"user_id":    tc.UserID(),
			}).Error("resolving tenant failed")
			respondError(c, http.StatusInternalServerError, codeInternal, "internal server error")
			return
		}

		if m != nil {
			if err := tc.SetTenant(m.TenantID, m.Role); err != nil {
				respondError(c, http.StatusForbidden, codeForbidden, "forbidden")
				return
			}
		}

		c.Next()
	}
}

// RequireTenant rejects requests that are not bound to a tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tc := TenantContext(c); tc == nil || tc.TenantID() == "" {
			respondError(c, http.StatusForbidden, codeTenantUnresolved, "tenant not resolved")
			return
		}

		c.Next()
	}
}

// RequireRole rejects requests whose tenant role is not in allowed.
func RequireRole(allowed []models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := TenantContext(c)
		if tc == nil || !slices.Contains(allowed, tc.Role()) {
			respondError(c, http.StatusForbidden, codeForbidden, "forbidden")
			return
		}

		c.Next()
	}
}

// RequirePlatformAdmin rejects callers that are not platform admins.
func RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tc := TenantContext(c); tc == nil || !tc.IsPlatformAdmin() {
			respondError(c, http.StatusForbidden, codeForbidden, "forbidden")
			return
		}

		c.Next()
	}
}

// WebhookContext replaces the request's tenant context with an
// unauthenticated webhook context that may perform one data source lookup.
func WebhookContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenant.ForWebhook(c.GetString(RequestIDKey))
		c.Request = c.Request.WithContext(tenant.With(c.Request.Context(), tc))
		c.Next()
	}
}
