package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/models"
)

// maxBodyRead caps request bodies read in full by ingestion handlers.
const maxBodyRead = 10 << 20

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid, exists := c.Get(middleware.RequestIDKey); exists {
			fields["request_id"] = rid
		}
		if tc := middleware.TenantContext(c); tc != nil {
			if tid := tc.TenantID(); tid != "" {
				fields["tenant_id"] = tid
			}
			if uid := tc.UserID(); uid != "" {
				fields["user_id"] = uid
			}
		}
		log.WithFields(fields).Info("request")
	}
}

// tenantID returns the tenant the request is bound to. Routes that call it
// sit behind RequireTenant.
func tenantID(c *gin.Context) string {
	if tc := middleware.TenantContext(c); tc != nil {
		return tc.TenantID()
	}

	return ""
}

// viewer describes the caller for dashboard permission checks.
func viewer(c *gin.Context) domain.Viewer {
	tc := middleware.TenantContext(c)
	if tc == nil {
		return domain.Viewer{}
	}

	return domain.Viewer{UserID: tc.UserID(), Role: tc.Role()}
}

// parsePage reads ?page= and ?pageSize= with the shared clamping rules.
func parsePage(c *gin.Context) models.Page {
	return models.ParsePage(c.Query("page"), c.Query("pageSize"))
}

// parseRange reads ?range=, ?start= and ?end=.
func parseRange(c *gin.Context) daterange.Spec {
	return daterange.Spec{
		Range: c.Query("range"),
		Start: c.Query("start"),
		End:   c.Query("end"),
	}
}

// pathID reads and validates a path parameter, answering 400 when it is
// unusable. An empty return means the response has been written.
func pathID(c *gin.Context, name string) string {
	id := c.Param(name)
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return ""
	}

	return id
}

// validatePathID checks that a path parameter ID is non-empty and within length limits.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("id exceeds maximum length of 255")
	}
	return nil
}

// bindJSON decodes the body into dst, answering 400 on malformed JSON.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return false
	}

	return true
}
