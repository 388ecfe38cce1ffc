package workqueue

import (
	"context"
	"testing"
	"time"

	lyzrredis "github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Info(msg string, kv ...interface{})  { l.t.Logf("[INFO] %s %v", msg, kv) }
func (l *testLogger) Error(msg string, kv ...interface{}) { l.t.Logf("[ERROR] %s %v", msg, kv) }
func (l *testLogger) Warn(msg string, kv ...interface{})  { l.t.Logf("[WARN] %s %v", msg, kv) }
func (l *testLogger) Debug(msg string, kv ...interface{}) { l.t.Logf("[DEBUG] %s %v", msg, kv) }

func newTestQueue(t *testing.T) *RedisQueue {
	ctx := context.Background()
	raw := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := raw.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available on localhost:6379: %v", err)
	}
	t.Cleanup(func() { raw.FlushDB(ctx); raw.Close() })

	client := lyzrredis.NewClient(raw, &testLogger{t: t})
	q, err := NewRedisQueue(ctx, client)
	require.NoError(t, err)
	return q
}

func TestRedisQueue_PublishAndConsume(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	runID := id.NewWorkflowRunID()

	require.NoError(t, q.Publish(ctx, WorkItem{RunID: runID, NodeID: "fetch", Attempt: 1}))

	deliveries, err := q.Consume(ctx, "worker-1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, id.NodeID("fetch"), deliveries[0].Item.NodeID)
	require.NotEmpty(t, deliveries[0].DeliveryID)

	require.NoError(t, q.Ack(ctx, deliveries[0].DeliveryID))
}

func TestRedisQueue_ConsumeTimesOutWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	deliveries, err := q.Consume(ctx, "worker-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, deliveries)
}
