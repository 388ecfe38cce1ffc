package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/workflowengine/cmd/apiserver/container"
	"github.com/lyzr/workflowengine/cmd/apiserver/routes"
	"github.com/lyzr/workflowengine/common/bootstrap"
	lyzrmiddleware "github.com/lyzr/workflowengine/common/middleware"
	"github.com/lyzr/workflowengine/common/ratelimit"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "apiserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap apiserver: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e)
	routes.RegisterRoutes(e, serviceContainer)
	startServer(e, components)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(lyzrmiddleware.GlobalRateLimitMiddleware(c.RateLimiter, ratelimit.DefaultGlobalConfig.Limit))
}

func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "apiserver"})
	})
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("Starting apiserver", "port", port)
	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
