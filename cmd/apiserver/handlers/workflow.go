package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/workflowengine/cmd/apiserver/container"
	"github.com/lyzr/workflowengine/cmd/apiserver/service"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/store"
)

// WorkflowHandler handles workflow CRUD requests.
type WorkflowHandler struct {
	workflows *service.WorkflowService
	logger    service.Logger
}

// NewWorkflowHandler builds a WorkflowHandler from c's services.
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{workflows: c.WorkflowService, logger: c.Components.Logger}
}

// CreateWorkflow handles POST /api/v1/workflows.
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "name is required"})
	}

	w, err := h.workflows.Create(ctx, req)
	if err != nil {
		h.logger.Error("failed to create workflow", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, w)
}

// GetWorkflow handles GET /api/v1/workflows/:id.
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	w, err := h.workflows.Get(ctx, workflowID)
	if err != nil {
		return notFoundOr500(c, err, "workflow not found")
	}
	return c.JSON(http.StatusOK, w)
}

// ListWorkflows handles GET /api/v1/workflows.
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	summaries, err := h.workflows.List(ctx)
	if err != nil {
		h.logger.Error("failed to list workflows", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to list workflows"})
	}
	return c.JSON(http.StatusOK, summaries)
}

// UpdateWorkflow handles PUT /api/v1/workflows/:id.
func (h *WorkflowHandler) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	var req service.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}

	w, err := h.workflows.Update(ctx, workflowID, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "workflow not found"})
		}
		h.logger.Error("failed to update workflow", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, w)
}

// SetWorkflowEnabled handles PATCH /api/v1/workflows/:id/enabled.
func (h *WorkflowHandler) SetWorkflowEnabled(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}

	if err := h.workflows.SetEnabled(ctx, workflowID, body.Enabled); err != nil {
		return notFoundOr500(c, err, "workflow not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteWorkflow handles DELETE /api/v1/workflows/:id.
func (h *WorkflowHandler) DeleteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	if err := h.workflows.Delete(ctx, workflowID); err != nil {
		return notFoundOr500(c, err, "workflow not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListWorkflowTriggers handles GET /api/v1/workflows/:id/triggers.
func (h *WorkflowHandler) ListWorkflowTriggers(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := id.WorkflowID(c.Param("id"))

	triggers, err := h.workflows.Triggers(ctx, workflowID)
	if err != nil {
		h.logger.Error("failed to list triggers", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "failed to list triggers"})
	}
	return c.JSON(http.StatusOK, triggers)
}

func notFoundOr500(c echo.Context, err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": notFoundMsg})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}
