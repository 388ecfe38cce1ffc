package objectstore

import (
	"context"
	"testing"
	"time"

	lyzrredis "github.com/lyzr/workflowengine/common/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Info(msg string, kv ...interface{})  { l.t.Logf("[INFO] %s %v", msg, kv) }
func (l *testLogger) Error(msg string, kv ...interface{}) { l.t.Logf("[ERROR] %s %v", msg, kv) }
func (l *testLogger) Warn(msg string, kv ...interface{})  { l.t.Logf("[WARN] %s %v", msg, kv) }
func (l *testLogger) Debug(msg string, kv ...interface{}) { l.t.Logf("[DEBUG] %s %v", msg, kv) }

func newTestStore(t *testing.T) *RedisStore {
	ctx := context.Background()
	raw := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := raw.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available on localhost:6379: %v", err)
	}
	t.Cleanup(func() { raw.FlushDB(ctx); raw.Close() })

	client := lyzrredis.NewClient(raw, &testLogger{t: t})
	return NewRedisStore(client, time.Minute)
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, err := store.Put(ctx, []byte(`{"result":42}`))
	require.NoError(t, err)
	require.Contains(t, key, "sha256:")

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"result":42}`, string(got))
}

func TestRedisStore_PutIsContentAddressed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key1, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	key2, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "sha256:doesnotexist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, err := store.Put(ctx, []byte("to be removed"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}
