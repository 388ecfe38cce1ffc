package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/workflowengine/cmd/apiserver/container"
	"github.com/lyzr/workflowengine/cmd/apiserver/service"
	"github.com/lyzr/workflowengine/common/middleware"
	"github.com/lyzr/workflowengine/internal/id"
)

// RunHandler handles run listing, lookup, and manual triggering.
type RunHandler struct {
	runs   *service.RunService
	logger service.Logger
}

// NewRunHandler builds a RunHandler from c's services.
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{runs: c.RunService, logger: c.Components.Logger}
}

// TriggerRun handles POST /api/v1/workflows/:id/runs — a manual
// trigger, recorded with the caller's ID for audit (spec §6).
func (h *RunHandler) TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))
	caller := middleware.CallerID(c)

	var body struct {
		Input json.RawMessage `json:"input"`
	}
	// A missing or empty body means "no input" rather than a bad request.
	_ = c.Bind(&body)

	if err := h.runs.Trigger(ctx, workflowID, caller, body.Input); err != nil {
		var rateLimited *service.RateLimitedError
		if errors.As(err, &rateLimited) {
			h.logger.Warn("run trigger rate limited", "workflow_id", workflowID, "caller", caller, "tier", rateLimited.Tier)
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":               "tiered_rate_limit_exceeded",
				"tier":                rateLimited.Tier,
				"retry_after_seconds": rateLimited.RetryAfterSeconds,
			})
		}
		h.logger.Error("failed to trigger run", "workflow_id", workflowID, "caller", caller, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	}
	h.logger.Info("run triggered", "workflow_id", workflowID, "caller", caller)
	return c.JSON(http.StatusAccepted, map[string]interface{}{"status": "queued"})
}

// GetRun handles GET /api/v1/runs/:id.
func (h *RunHandler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := id.WorkflowRunID(c.Param("id"))

	run, err := h.runs.Get(ctx, runID)
	if err != nil {
		return notFoundOr500(c, err, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /api/v1/workflows/:id/runs.
func (h *RunHandler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	runs, err := h.runs.List(ctx, workflowID, limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to list runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

// ListRunNodeExecutions handles GET /api/v1/runs/:id/nodes.
func (h *RunHandler) ListRunNodeExecutions(c echo.Context) error {
	ctx := c.Request().Context()
	runID := id.WorkflowRunID(c.Param("id"))

	execs, err := h.runs.NodeExecutions(ctx, runID)
	if err != nil {
		h.logger.Error("failed to list node executions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to list node executions"})
	}
	return c.JSON(http.StatusOK, execs)
}
