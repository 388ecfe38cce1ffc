// Package scheduler owns cron-style triggers: a poll loop that scans
// active schedule triggers, computes each one's next fire time with
// robfig/cron's standard parser, and starts a run when that time has
// passed. Unlike aipilotbyjd-linkflow-ai's
// internal/engine/scheduler.go, entries are never kept resident as
// long-lived cron.Cron jobs — a single poll loop re-derives next-fire
// from each trigger's stored LastFire on every tick, which is what lets
// more than one scheduler process exist without double-firing as long
// as trigger reads are serialized by the store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyzr/workflowengine/internal/id"
)

// MissedExecutionBehavior decides what happens when the poll interval
// let more than one fire time elapse since a trigger's LastFire.
type MissedExecutionBehavior string

const (
	MissedExecutionSkip     MissedExecutionBehavior = "skip"
	MissedExecutionFireOnce MissedExecutionBehavior = "fire_once"
	MissedExecutionFireAll  MissedExecutionBehavior = "fire_all"
)

// maxFireAllCatchUp bounds FireAll's catch-up run count so a scheduler
// that was down for a long time doesn't flood the work queue.
const maxFireAllCatchUp = 20

// TriggerRecord is a denormalized schedule trigger, scanned independently
// of the workflow graph it belongs to.
type TriggerRecord struct {
	ID         id.TriggerID
	WorkflowID id.WorkflowID
	NodeID     id.NodeID
	CronExpr   string
	Timezone   string // IANA name; empty means UTC
	Missed     MissedExecutionBehavior
	Active     bool
	LastFire   *time.Time
}

// TriggerStore is the narrow slice of internal/store a Scheduler needs.
// Defined here rather than depended on from internal/store so this
// package compiles standalone; internal/store's Postgres-backed
// implementation satisfies it.
type TriggerStore interface {
	ListActiveSchedules(ctx context.Context) ([]TriggerRecord, error)
	RecordFire(ctx context.Context, triggerID id.TriggerID, firedAt time.Time) error
}

// RunStarter creates a Queued run for workflowID off of triggerID and
// hands it to an orchestrator instance. In production this is
// cmd/engine's run-pool manager; tests use a recording fake.
type RunStarter interface {
	StartRun(ctx context.Context, workflowID id.WorkflowID, triggerID id.TriggerID, firedAt time.Time) error
}

// Logger is the minimal structured-logging surface the scheduler needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Clock returns the current time; tests supply a fixed clock.
type Clock func() time.Time

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr parses expr as a standard 5-field cron expression,
// returning an error if it's malformed. Called at trigger upsert time
// so the engine never stores an invalid schedule.
func ValidateCronExpr(expr string) error {
	_, err := standardParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler polls TriggerStore for due schedule triggers and starts runs
// through RunStarter.
type Scheduler struct {
	store   TriggerStore
	starter RunStarter
	clock   Clock
	logger  Logger
}

// Options configures a new Scheduler.
type Options struct {
	Store   TriggerStore
	Starter RunStarter
	Logger  Logger
	Clock   Clock // defaults to time.Now
}

// New builds a Scheduler.
func New(opts Options) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{store: opts.Store, starter: opts.Starter, clock: clock, logger: opts.Logger}
}

// Run polls at interval until ctx is cancelled, calling Tick on each
// wakeup and logging (but not propagating) tick errors so one bad
// trigger or a transient store error doesn't kill the loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick scans every active schedule trigger once and starts a run for
// each one whose next fire time has passed, applying its configured
// MissedExecutionBehavior for multi-period catch-up.
func (s *Scheduler) Tick(ctx context.Context) error {
	triggers, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list active schedule triggers: %w", err)
	}

	now := s.clock()
	for _, trig := range triggers {
		if err := s.fireIfDue(ctx, trig, now); err != nil {
			s.logger.Error("trigger evaluation failed", "trigger_id", trig.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) fireIfDue(ctx context.Context, trig TriggerRecord, now time.Time) error {
	schedule, err := parseSchedule(trig.CronExpr, trig.Timezone)
	if err != nil {
		return fmt.Errorf("parse schedule for trigger %s: %w", trig.ID, err)
	}

	from := now
	if trig.LastFire != nil {
		from = *trig.LastFire
	}
	next := schedule.Next(from)
	if next.After(now) {
		return nil
	}

	fireTimes := dueFireTimes(schedule, from, now, trig.Missed)
	if len(fireTimes) == 0 {
		return s.store.RecordFire(ctx, trig.ID, now)
	}

	for _, firedAt := range fireTimes {
		if err := s.starter.StartRun(ctx, trig.WorkflowID, trig.ID, firedAt); err != nil {
			return fmt.Errorf("start run for trigger %s: %w", trig.ID, err)
		}
	}
	return s.store.RecordFire(ctx, trig.ID, fireTimes[len(fireTimes)-1])
}

// dueFireTimes returns the fire times to actually run for, applying the
// trigger's MissedExecutionBehavior when more than one period elapsed
// between from and now.
func dueFireTimes(schedule cron.Schedule, from, now time.Time, behavior MissedExecutionBehavior) []time.Time {
	var elapsed []time.Time
	t := schedule.Next(from)
	for !t.After(now) && len(elapsed) <= maxFireAllCatchUp {
		elapsed = append(elapsed, t)
		t = schedule.Next(t)
	}
	if len(elapsed) == 0 {
		return nil
	}
	if len(elapsed) == 1 {
		return elapsed
	}

	switch behavior {
	case MissedExecutionFireAll:
		if len(elapsed) > maxFireAllCatchUp {
			elapsed = elapsed[len(elapsed)-maxFireAllCatchUp:]
		}
		return elapsed
	case MissedExecutionSkip:
		return nil
	case MissedExecutionFireOnce:
		fallthrough
	default:
		return elapsed[len(elapsed)-1:]
	}
}

func parseSchedule(expr, timezone string) (cron.Schedule, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	schedule, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return &locatedSchedule{schedule: schedule, loc: loc}, nil
}

// locatedSchedule evaluates an underlying cron.Schedule in a fixed IANA
// location regardless of the time.Time passed to Next, since
// robfig/cron's SpecSchedule.Next interprets t in t's own location.
type locatedSchedule struct {
	schedule cron.Schedule
	loc      *time.Location
}

func (l *locatedSchedule) Next(t time.Time) time.Time {
	return l.schedule.Next(t.In(l.loc))
}
