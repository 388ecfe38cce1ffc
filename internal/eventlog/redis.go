package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/id"
	goredis "github.com/redis/go-redis/v9"
)

// RedisLog stores each run's events in its own Redis stream, keyed
// eventlog:<run_id>. The XADD-assigned stream ID becomes the envelope's
// sort key, so replay just reads the stream in order.
//
// Built on common/redis.Client's stream wrapper (AddToStream /
// ReadFromStreamGroup), repointed from per-node-type work streams to
// one append-only log stream per run.
type RedisLog struct {
	client *redis.Client
}

// NewRedisLog wraps an already-connected redis.Client.
func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

func streamKey(runID id.WorkflowRunID) string {
	return fmt.Sprintf("eventlog:%s", runID)
}

// Publish appends ev to runID's stream.
func (l *RedisLog) Publish(ctx context.Context, runID id.WorkflowRunID, ev event.ExecutionEvent) (event.Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("marshal execution event: %w", err)
	}

	streamID, err := l.client.AddToStream(ctx, streamKey(runID), map[string]interface{}{
		"payload": string(payload),
	})
	if err != nil {
		return event.Envelope{}, fmt.Errorf("append event to log: %w", err)
	}

	return event.Envelope{ID: streamID, Payload: ev, Timestamp: ev.Timestamp}, nil
}

// LoadEvents reads runID's entire stream from the beginning.
func (l *RedisLog) LoadEvents(ctx context.Context, runID id.WorkflowRunID) ([]event.Envelope, error) {
	msgs, err := l.client.GetUnderlying().XRange(ctx, streamKey(runID), "-", "+").Result()
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("read event log for run %s: %w", runID, err)
	}

	out := make([]event.Envelope, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["payload"].(string)
		if !ok {
			continue
		}
		var ev event.ExecutionEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s in run %s: %w", m.ID, runID, err)
		}
		out = append(out, event.Envelope{ID: m.ID, Payload: ev, Timestamp: ev.Timestamp})
	}

	// XRANGE already returns ascending stream-ID order; re-sort
	// defensively, comparing the millisecond and sequence parts of each
	// "<ms>-<seq>" ID numerically so "-10" still sorts after "-9".
	sort.SliceStable(out, func(i, j int) bool {
		var msI, seqI, msJ, seqJ uint64
		fmt.Sscanf(out[i].ID, "%d-%d", &msI, &seqI)
		fmt.Sscanf(out[j].ID, "%d-%d", &msJ, &seqJ)
		if msI != msJ {
			return msI < msJ
		}
		return seqI < seqJ
	})
	return out, nil
}
