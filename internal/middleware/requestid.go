package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/tenant"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"
)

// RequestContext generates a fresh server-side request ID and attaches a
// new tenant context carrying it to the request. If the client provides an
// X-Request-ID header, it is logged as "client_request_id" but never used
// as the canonical ID.
func RequestContext(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()

		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			log.WithFields(logrus.Fields{
				"request_id":        id,
				"client_request_id": clientID,
			}).Debug("client provided request ID mapped to server ID")
			c.Set("client_request_id", clientID)
		}

		c.Request = c.Request.WithContext(tenant.With(c.Request.Context(), tenant.New(id)))
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// TenantContext returns the tenant context of the request, or nil outside
// RequestContext.
func TenantContext(c *gin.Context) *tenant.Context {
	return tenant.From(c.Request.Context())
}
