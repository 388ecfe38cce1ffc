package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/workflowengine/cmd/apiserver/container"
	"github.com/lyzr/workflowengine/cmd/apiserver/handlers"
	"github.com/lyzr/workflowengine/common/middleware"
	"github.com/lyzr/workflowengine/common/ratelimit"
)

// RegisterRoutes registers every API route using services from c.
func RegisterRoutes(e *echo.Echo, c *container.Container) {
	workflowHandler := handlers.NewWorkflowHandler(c)
	runHandler := handlers.NewRunHandler(c)

	api := e.Group("/api/v1")
	api.Use(middleware.ExtractCallerID())
	api.Use(middleware.UserRateLimitMiddleware(c.RateLimiter, ratelimit.DefaultTierConfigs[ratelimit.TierStandard].Limit))

	wf := api.Group("/workflows")
	wf.POST("", workflowHandler.CreateWorkflow)
	wf.GET("", workflowHandler.ListWorkflows)
	wf.GET("/:id", workflowHandler.GetWorkflow)
	wf.PUT("/:id", workflowHandler.UpdateWorkflow)
	wf.PATCH("/:id/enabled", workflowHandler.SetWorkflowEnabled)
	wf.DELETE("/:id", workflowHandler.DeleteWorkflow)
	wf.GET("/:id/triggers", workflowHandler.ListWorkflowTriggers)
	wf.POST("/:id/runs", runHandler.TriggerRun)
	wf.GET("/:id/runs", runHandler.ListRuns)

	runs := api.Group("/runs")
	runs.GET("/:id", runHandler.GetRun)
	runs.GET("/:id/nodes", runHandler.ListRunNodeExecutions)
}
