package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyzr/workflowengine/cmd/engine/container"
	"github.com/lyzr/workflowengine/common/bootstrap"
	"github.com/lyzr/workflowengine/internal/runqueue"
	"github.com/lyzr/workflowengine/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	c, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize engine container: %v\n", err)
		os.Exit(1)
	}

	// Every subsystem loops on its own until gctx is cancelled, so
	// normally each g.Go call returns nil; errgroup's job here is
	// purely the fan-in — the first goroutine to return a non-nil
	// error cancels gctx for all the others, which is what used to be
	// hand-rolled with a buffered errChan and a select.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runRunStarterLoop(gctx, c) })
	for i := 0; i < workerPoolSize(); i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error { return runWorker(gctx, c, workerID) })
	}
	g.Go(func() error { runScheduler(gctx, c); return nil })

	components.Logger.Info("engine started",
		"workers", workerPoolSize(), "run_starters", 1, "scheduler_interval", schedulerInterval())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			components.Logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
	}()

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		components.Logger.Error("engine component failed", "error", err)
		os.Exit(1)
	}

	components.Logger.Info("engine shutting down gracefully")
}

// runRunStarterLoop consumes internal/runqueue deliveries — manual
// triggers from cmd/apiserver and cron fires from internal/scheduler —
// and starts an Orchestrator for each, acking only once the run is
// durably recorded (the same durability-before-ack ordering
// internal/worker uses for node results).
func runRunStarterLoop(ctx context.Context, c *container.Container) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deliveries, err := c.RunQueue.Consume(ctx, "run-starter", 1, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Components.Logger.Error("run queue consume failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, d := range deliveries {
			handleRunRequestDelivery(ctx, c, d)
		}
	}
}

func handleRunRequestDelivery(ctx context.Context, c *container.Container, d runqueue.Delivery) {
	if err := c.Supervisor.HandleRunRequest(ctx, d.Request); err != nil {
		c.Components.Logger.Error("failed to start run from queue", "workflow_id", d.Request.WorkflowID, "error", err)
		return
	}
	if err := c.RunQueue.Ack(ctx, d.DeliveryID); err != nil {
		c.Components.Logger.Error("failed to ack run request", "delivery_id", d.DeliveryID, "error", err)
	}
}

// runWorker runs one worker.Worker's pull loop until ctx is cancelled.
func runWorker(ctx context.Context, c *container.Container, id string) error {
	w := worker.New(worker.Options{
		ID:         id,
		Queue:      c.WorkQueue,
		Store:      c.Objects,
		Graphs:     c.Graphs,
		Dispatcher: c.Dispatcher,
		Results:    c.Supervisor,
		Logger:     c.Components.Logger,
	})
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := w.PullOnce(ctx, 5*time.Second); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Components.Logger.Error("worker pull failed", "worker_id", id, "error", err)
			time.Sleep(time.Second)
		}
	}
}

// runScheduler runs the cron poll loop until ctx is cancelled.
func runScheduler(ctx context.Context, c *container.Container) {
	c.Scheduler.Run(ctx, schedulerInterval())
}

func workerPoolSize() int {
	if raw := os.Getenv("ENGINE_WORKER_COUNT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

func schedulerInterval() time.Duration {
	if raw := os.Getenv("SCHEDULER_POLL_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 15 * time.Second
}
