package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/httputil"
	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternalError   = "internal_error"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeUpstream        = "upstream_error"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps service and store errors onto HTTP statuses.
// Scope failures always answer with the same generic 403 body.
func respondServiceError(c *gin.Context, log *logrus.Logger, err error, op string) {
	var verr *models.ValidationError

	switch {
	case errors.As(err, &verr):
		metrics.ErrorsTotal.WithLabelValues(ErrCodeValidationError).Inc()
		httputil.RespondErrorDetails(c, http.StatusBadRequest, ErrCodeValidationError, "invalid payload", verr.Issues)
	case errors.Is(err, models.ErrForbidden):
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(middleware.RequestIDKey),
			"op":         op,
		}).WithError(err).Warn("access denied")
		respondError(c, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, models.ErrDuplicateKey):
		respondError(c, http.StatusConflict, ErrCodeConflict, "resource already exists")
	case errors.Is(err, models.ErrConflict):
		respondError(c, http.StatusConflict, ErrCodeConflict, detail(err, models.ErrConflict))
	case errors.Is(err, models.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, detail(err, models.ErrUnauthorized))
	case errors.Is(err, models.ErrUpstream):
		log.WithError(err).WithField("op", op).Warn("upstream failure")
		respondError(c, http.StatusBadGateway, ErrCodeUpstream, "upstream request failed")
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString(middleware.RequestIDKey),
			"op":         op,
		}).Error("request failed")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}

// detail strips the class prefix from a wrapped sentinel message.
func detail(err, class error) string {
	return strings.TrimPrefix(err.Error(), class.Error()+": ")
}
