// Package container wires cmd/apiserver's services once at startup,
// the same singleton-container pattern as cmd/orchestrator/container.
package container

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/workflowengine/cmd/apiserver/service"
	"github.com/lyzr/workflowengine/common/bootstrap"
	"github.com/lyzr/workflowengine/common/ratelimit"
	lyzrredis "github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/internal/runqueue"
	"github.com/lyzr/workflowengine/internal/scheduler"
	"github.com/lyzr/workflowengine/internal/store"
	"github.com/lyzr/workflowengine/internal/workflow"
)

// Container holds every initialized service the API handlers depend on.
type Container struct {
	Components  *bootstrap.Components
	Store       *store.Store
	RateLimiter *ratelimit.RateLimiter

	WorkflowService *service.WorkflowService
	RunService      *service.RunService
}

// NewContainer builds a Container from already-bootstrapped components.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	s := store.New(components.DB, components.Logger)
	if err := store.MigrateSchema(ctx, components.DB); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	workflow.SetCronValidator(scheduler.ValidateCronExpr)

	redisClient, err := createRedisClient(ctx, components)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	runQueue, err := runqueue.NewRedisQueue(ctx, redisClient)
	if err != nil {
		return nil, fmt.Errorf("create run queue: %w", err)
	}
	rateLimiter := ratelimit.NewRateLimiter(redisClient.GetUnderlying(), components.Logger)

	return &Container{
		Components:      components,
		Store:           s,
		RateLimiter:     rateLimiter,
		WorkflowService: service.NewWorkflowService(s, components.Logger),
		RunService:      service.NewRunService(s, runQueue, rateLimiter),
	}, nil
}

func createRedisClient(ctx context.Context, components *bootstrap.Components) (*lyzrredis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	raw := redis.NewClient(&redis.Options{Addr: addr, Password: getEnv("REDIS_PASSWORD", "")})
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return lyzrredis.NewClient(raw, components.Logger), nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
