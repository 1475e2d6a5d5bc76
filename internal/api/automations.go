package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/models"
)

// AutomationHandler serves automation rule and run endpoints.
type AutomationHandler struct {
	svc AutomationService
	log *logrus.Logger
}

// NewAutomationHandler creates an AutomationHandler.
func NewAutomationHandler(svc AutomationService, log *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{svc: svc, log: log}
}

// List handles GET /api/v1/automations.
func (h *AutomationHandler) List(c *gin.Context) {
	p := parsePage(c)

	rules, err := h.svc.ListRules(c.Request.Context(), tenantID(c), p)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.list")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(rules, p))
}

// Create handles POST /api/v1/automations.
func (h *AutomationHandler) Create(c *gin.Context) {
	var req models.CreateRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.svc.CreateRule(c.Request.Context(), tenantID(c), req)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.create")
		return
	}

	c.JSON(http.StatusCreated, r)
}

// Get handles GET /api/v1/automations/:id.
func (h *AutomationHandler) Get(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	r, err := h.svc.GetRule(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.get")
		return
	}

	c.JSON(http.StatusOK, r)
}

// SetStatus handles PATCH /api/v1/automations/:id/status.
func (h *AutomationHandler) SetStatus(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	var req models.UpdateRuleStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.svc.SetRuleStatus(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.status")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Run handles POST /api/v1/automations/:id/run. With ?async=true the run is
// queued and 202 returns the job. A second run inside the
// same window reports the recorded run as skipped.
func (h *AutomationHandler) Run(c *gin.Context) {
	id := pathID(c, "id")
	if id == "" {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		job, err := h.svc.EnqueueRun(c.Request.Context(), tenantID(c), id)
		if err != nil {
			respondServiceError(c, h.log, err, "automation.enqueue")
			return
		}

		c.JSON(http.StatusAccepted, job)
		return
	}

	out, err := h.svc.RunRule(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.run")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "automation.run",
		"tenant_id": tenantID(c),
		"rule_id":   id,
		"triggered": out.Triggered,
		"skipped":   out.Skipped,
	}).Info("audit")

	c.JSON(http.StatusOK, out)
}

// Runs handles GET /api/v1/automations/runs?ruleId=.
func (h *AutomationHandler) Runs(c *gin.Context) {
	q := models.RunQuery{RuleID: c.Query("ruleId"), Page: parsePage(c)}

	runs, err := h.svc.ListRuns(c.Request.Context(), tenantID(c), q)
	if err != nil {
		respondServiceError(c, h.log, err, "automation.runs")
		return
	}

	c.JSON(http.StatusOK, models.NewPageResult(runs, q.Page))
}
