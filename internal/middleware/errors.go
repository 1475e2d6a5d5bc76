package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/persistorai/cadence/internal/httputil"
	"github.com/persistorai/cadence/internal/metrics"
)

// Error codes written by middleware. Handlers use the codes in package api.
const (
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeBadRequest       = "bad_request"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal_error"
	codeTenantUnresolved = "tenant_unresolved"
	codeTooLarge         = "payload_too_large"
)

// respondError counts the rejection and writes the shared error body.
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}
