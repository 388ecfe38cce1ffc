// Package container wires cmd/engine's services once at startup: the
// orchestrator pool (supervisor), the worker pool's shared dependencies,
// and the scheduler, the same singleton-wiring pattern cmd/apiserver
// and cmd/orchestrator use.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/lyzr/workflowengine/cmd/engine/adapters"
	"github.com/lyzr/workflowengine/cmd/engine/supervisor"
	"github.com/lyzr/workflowengine/common/bootstrap"
	"github.com/lyzr/workflowengine/common/logger"
	lyzrredis "github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/executor/ai"
	"github.com/lyzr/workflowengine/internal/executor/controlflow"
	"github.com/lyzr/workflowengine/internal/executor/integration"
	"github.com/lyzr/workflowengine/internal/executor/memory"
	"github.com/lyzr/workflowengine/internal/executor/output"
	"github.com/lyzr/workflowengine/internal/executor/transform"
	"github.com/lyzr/workflowengine/internal/eventlog"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/objectstore"
	"github.com/lyzr/workflowengine/internal/runqueue"
	"github.com/lyzr/workflowengine/internal/scheduler"
	"github.com/lyzr/workflowengine/internal/store"
	"github.com/lyzr/workflowengine/internal/workflow"
	"github.com/lyzr/workflowengine/internal/workqueue"
)

// Container holds every initialized component cmd/engine's run loops
// depend on.
type Container struct {
	Components *bootstrap.Components
	Store      *store.Store

	EventLog   eventlog.Log
	Objects    objectstore.Store
	WorkQueue  workqueue.Queue
	RunQueue   runqueue.Queue
	Dispatcher *executor.Dispatcher
	Graphs     *storeGraphLoader
	Supervisor *supervisor.Supervisor
	Scheduler  *scheduler.Scheduler
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

	eventLog := eventlog.NewRedisLog(redisClient)
	objects := objectstore.NewRedisStore(redisClient, 0)
	workQueue, err := workqueue.NewRedisQueue(ctx, redisClient)
	if err != nil {
		return nil, fmt.Errorf("create work queue: %w", err)
	}
	runQueue, err := runqueue.NewRedisQueue(ctx, redisClient)
	if err != nil {
		return nil, fmt.Errorf("create run queue: %w", err)
	}

	graphs := &storeGraphLoader{store: s}
	dispatcher := buildDispatcher(s, components.Logger)

	sup := supervisor.New(supervisor.Options{
		Graphs: graphs,
		Log:    eventLog,
		Queue:  workQueue,
		Store:  s,
		Logger: components.Logger,
	})

	sched := scheduler.New(scheduler.Options{
		Store:   s.Triggers,
		Starter: sup,
		Logger:  components.Logger,
	})

	return &Container{
		Components: components,
		Store:      s,
		EventLog:   eventLog,
		Objects:    objects,
		WorkQueue:  workQueue,
		RunQueue:   runQueue,
		Dispatcher: dispatcher,
		Graphs:     graphs,
		Supervisor: sup,
		Scheduler:  sched,
	}, nil
}

// buildDispatcher wires one NodeExecutor per category. ai.Backend,
// integration's connectors/account resolver, and output's
// notifier/responder are all explicitly opaque in internal/executor's
// sub-packages — no implementation ships with the engine itself — so
// this is the one place cmd/engine makes a concrete choice: the
// HTTP-based adapters in cmd/engine/adapters, configured entirely from
// environment variables so a deployment can repoint them without a
// rebuild. An unset endpoint falls back to a localhost default URL, so
// every category's executor is wired to an adapter rather than a nil
// field; a deployment with nothing listening at that default fails at
// dispatch time instead of panicking.
func buildDispatcher(s *store.Store, log *logger.Logger) *executor.Dispatcher {
	aiBackend := adapters.NewHTTPAIBackend(getEnv("AI_BACKEND_URL", "http://localhost:9000/v1/complete"), log)
	connector := adapters.NewHTTPConnector(getEnv("INTEGRATION_BASE_URL", "http://localhost:9001/v1/integrations"), log)
	accounts := adapters.NewStaticAccountResolver(loadStaticAccounts())
	notifier := adapters.NewWebhookNotifier(getEnv("NOTIFY_WEBHOOK_URL", "http://localhost:9002/v1/notify"), log)
	responder := adapters.NewHTTPResponder(getEnv("RESPONSE_CALLBACK_URL", "http://localhost:9003/v1/runs"), log)

	connectors := map[string]integration.Connector{}
	for _, integrationType := range knownIntegrationTypes() {
		connectors[integrationType] = connector
	}

	return executor.NewDispatcher(executor.Executors{
		AiLayer:     ai.NewRateLimited(aiBackend, rate.Limit(getEnvFloat("AI_BACKEND_RATE_LIMIT", 5)), getEnvInt("AI_BACKEND_RATE_BURST", 10)),
		Integration: integration.NewRateLimited(accounts, connectors, rate.Limit(getEnvFloat("INTEGRATION_RATE_LIMIT", 10)), getEnvInt("INTEGRATION_RATE_BURST", 20)),
		Transform:   transform.New(),
		ControlFlow: controlflow.New(),
		Memory:      memory.New(s.Memory),
		Output:      output.New(log, notifier, responder),
	})
}

// loadStaticAccounts parses INTEGRATION_ACCOUNTS_JSON, a
// integration_type -> {account_id, credentials} map, into the Account
// table adapters.StaticAccountResolver serves. Credential storage and
// rotation are explicitly out of scope for the engine; this is the
// minimal way to hand it a fixed set at startup.
func loadStaticAccounts() map[string]integration.Account {
	raw := os.Getenv("INTEGRATION_ACCOUNTS_JSON")
	if raw == "" {
		return map[string]integration.Account{}
	}
	var parsed map[string]struct {
		AccountID   string            `json:"account_id"`
		Credentials map[string]string `json:"credentials"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]integration.Account{}
	}
	accounts := make(map[string]integration.Account, len(parsed))
	for integrationType, entry := range parsed {
		accounts[integrationType] = integration.Account{
			ID:          id.IntegrationAccountID(entry.AccountID),
			Credentials: entry.Credentials,
		}
	}
	return accounts
}

// knownIntegrationTypes lists the integration_type values the static
// HTTPConnector answers for. Kept as a fixed list rather than derived
// from loadStaticAccounts so a type with no account configured fails
// at the account-resolution step (an ExternalServiceError) rather than
// with the ConfigurationError "no connector registered" — a clearer
// signal for which layer is missing its configuration.
func knownIntegrationTypes() []string {
	raw := os.Getenv("INTEGRATION_TYPES")
	if raw == "" {
		return nil
	}
	var types []string
	if err := json.Unmarshal([]byte(raw), &types); err != nil {
		return nil
	}
	return types
}

// storeGraphLoader implements both internal/worker.GraphLoader and
// cmd/engine/supervisor.GraphLoader against internal/store, the single
// source of workflow definitions every run execution path needs.
type storeGraphLoader struct {
	store *store.Store
}

func (l *storeGraphLoader) Load(ctx context.Context, workflowID id.WorkflowID) (*graph.Graph, error) {
	w, err := l.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return w.Graph, nil
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

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
