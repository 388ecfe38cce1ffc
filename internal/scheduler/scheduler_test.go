package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/id"
	"github.com/stretchr/testify/require"
)

type memoryTriggerStore struct {
	mu       sync.Mutex
	triggers []TriggerRecord
	fires    map[id.TriggerID]time.Time
}

func newMemoryTriggerStore(triggers ...TriggerRecord) *memoryTriggerStore {
	return &memoryTriggerStore{triggers: triggers, fires: make(map[id.TriggerID]time.Time)}
}

func (s *memoryTriggerStore) ListActiveSchedules(context.Context) ([]TriggerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TriggerRecord, len(s.triggers))
	copy(out, s.triggers)
	return out, nil
}

func (s *memoryTriggerStore) RecordFire(_ context.Context, triggerID id.TriggerID, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires[triggerID] = firedAt
	for i := range s.triggers {
		if s.triggers[i].ID == triggerID {
			t := firedAt
			s.triggers[i].LastFire = &t
		}
	}
	return nil
}

type recordingStarter struct {
	mu      sync.Mutex
	started []startedRun
}

type startedRun struct {
	workflowID id.WorkflowID
	triggerID  id.TriggerID
	firedAt    time.Time
}

func (r *recordingStarter) StartRun(_ context.Context, workflowID id.WorkflowID, triggerID id.TriggerID, firedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, startedRun{workflowID, triggerID, firedAt})
	return nil
}

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Warn(string, ...interface{})  {}

func TestValidateCronExpr(t *testing.T) {
	require.NoError(t, ValidateCronExpr("*/5 * * * *"))
	require.Error(t, ValidateCronExpr("not a cron expr"))
	require.Error(t, ValidateCronExpr("* * * * * *")) // 6 fields, seconds not supported
}

func TestScheduler_Tick_FiresDueTrigger(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)
	lastFire := now.Add(-2 * time.Minute)
	trig := TriggerRecord{
		ID: "trg_1", WorkflowID: "wf_1", CronExpr: "* * * * *",
		Missed: MissedExecutionFireOnce, Active: true, LastFire: &lastFire,
	}
	store := newMemoryTriggerStore(trig)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: func() time.Time { return now }})

	require.NoError(t, s.Tick(context.Background()))

	require.Len(t, starter.started, 1)
	require.Equal(t, id.WorkflowID("wf_1"), starter.started[0].workflowID)
	require.Contains(t, store.fires, id.TriggerID("trg_1"))
}

func TestScheduler_Tick_NotYetDueDoesNotFire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	lastFire := now
	trig := TriggerRecord{
		ID: "trg_1", WorkflowID: "wf_1", CronExpr: "* * * * *",
		Missed: MissedExecutionFireOnce, Active: true, LastFire: &lastFire,
	}
	store := newMemoryTriggerStore(trig)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: func() time.Time { return now }})

	require.NoError(t, s.Tick(context.Background()))
	require.Empty(t, starter.started)
}

func TestScheduler_Tick_MissedExecutionSkip(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)
	lastFire := now.Add(-10 * time.Minute)
	trig := TriggerRecord{
		ID: "trg_1", WorkflowID: "wf_1", CronExpr: "* * * * *",
		Missed: MissedExecutionSkip, Active: true, LastFire: &lastFire,
	}
	store := newMemoryTriggerStore(trig)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: func() time.Time { return now }})

	require.NoError(t, s.Tick(context.Background()))
	require.Empty(t, starter.started, "Skip must not start any catch-up runs despite multiple missed periods")
	require.Equal(t, now, store.fires["trg_1"], "Skip still advances last_fire to now")
}

func TestScheduler_Tick_MissedExecutionFireOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)
	lastFire := now.Add(-10 * time.Minute)
	trig := TriggerRecord{
		ID: "trg_1", WorkflowID: "wf_1", CronExpr: "* * * * *",
		Missed: MissedExecutionFireOnce, Active: true, LastFire: &lastFire,
	}
	store := newMemoryTriggerStore(trig)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: func() time.Time { return now }})

	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, starter.started, 1, "FireOnce collapses many missed periods into a single run")
}

func TestScheduler_Tick_MissedExecutionFireAll(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	lastFire := now.Add(-5 * time.Minute)
	trig := TriggerRecord{
		ID: "trg_1", WorkflowID: "wf_1", CronExpr: "* * * * *",
		Missed: MissedExecutionFireAll, Active: true, LastFire: &lastFire,
	}
	store := newMemoryTriggerStore(trig)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: func() time.Time { return now }})

	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, starter.started, 5, "FireAll fires once per elapsed minute boundary")
}

func TestScheduler_Tick_InvalidCronLogsAndContinues(t *testing.T) {
	lastFire := time.Now().Add(-time.Hour)
	bad := TriggerRecord{ID: "trg_bad", WorkflowID: "wf_1", CronExpr: "nonsense", Active: true, LastFire: &lastFire}
	good := TriggerRecord{ID: "trg_good", WorkflowID: "wf_2", CronExpr: "* * * * *", Missed: MissedExecutionFireOnce, Active: true, LastFire: &lastFire}
	store := newMemoryTriggerStore(bad, good)
	starter := &recordingStarter{}
	s := New(Options{Store: store, Starter: starter, Logger: testLogger{}, Clock: time.Now})

	require.NoError(t, s.Tick(context.Background()))
	require.Len(t, starter.started, 1)
	require.Equal(t, id.WorkflowID("wf_2"), starter.started[0].workflowID)
}
