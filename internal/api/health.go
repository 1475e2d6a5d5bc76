// Package api provides HTTP handlers for the cadence analytics API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// NamedCheck is a readiness probe with a label for the response body.
type NamedCheck struct {
	Name string
	// Optional checks degrade readiness instead of failing it.
	Optional bool
	Check    Check
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	database  Check
	checks    []NamedCheck
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. database backs the liveness
// report; checks run in order on readiness.
func NewHealthHandler(database Check, checks []NamedCheck, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		database:  database,
		checks:    checks,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Database      string  `json:"database"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Database:      "connected",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	// Best-effort database ping (non-fatal for liveness).
	if h.database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.database(ctx); err != nil {
			resp.Database = "disconnected"
		}
	} else {
		resp.Database = "not_configured"
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /ready. A failing required check short-circuits the
// remaining ones, which are reported as unknown.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := make(map[string]string, len(h.checks))
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failed := false
	for _, nc := range h.checks {
		if failed {
			checks[nc.Name] = "unknown"
			continue
		}

		err := nc.Check(ctx)
		switch {
		case err == nil:
			checks[nc.Name] = "ok"
		case nc.Optional:
			h.log.WithError(err).WithField("check", nc.Name).Warn("readiness: optional check failed")
			checks[nc.Name] = "degraded"
		default:
			h.log.WithError(err).WithField("check", nc.Name).Error("readiness: check failed")
			checks[nc.Name] = "error"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			failed = true
		}
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
