package workqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/redis"
)

const streamName = "workqueue:nodes"
const groupName = "workers"

// RedisQueue is a durable work queue backed by one Redis stream shared
// across all runs, consumed through a consumer group so that a
// crashed worker's claimed-but-unacked items become redeliverable to
// another worker once their visibility window elapses.
//
// Built on common/redis.Client's stream wrapper (AddToStream /
// ReadFromStreamGroup / AckStreamMessage / CreateStreamGroup), the same
// primitives cmd/workflow-runner's coordinator uses for its per-node-type
// streams, generalized here to one queue for the whole generic worker
// pool instead of many type-specific ones.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an already-connected redis.Client and ensures the
// shared consumer group exists.
func NewRedisQueue(ctx context.Context, client *redis.Client) (*RedisQueue, error) {
	if err := client.CreateStreamGroup(ctx, streamName, groupName); err != nil {
		return nil, fmt.Errorf("create workqueue consumer group: %w", err)
	}
	return &RedisQueue{client: client}, nil
}

// Publish enqueues item.
func (q *RedisQueue) Publish(ctx context.Context, item WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	if _, err := q.client.AddToStream(ctx, streamName, map[string]interface{}{
		"payload": string(payload),
	}); err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	return nil
}

// Consume reads up to count undelivered or expired-claim items for
// consumerID, blocking up to block if none are ready yet.
func (q *RedisQueue) Consume(ctx context.Context, consumerID string, count int64, block time.Duration) ([]Delivery, error) {
	streams, err := q.client.ReadFromStreamGroup(ctx, groupName, consumerID, streamName, count, block)
	if err != nil {
		return nil, fmt.Errorf("consume work items: %w", err)
	}

	var out []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var item WorkItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return nil, fmt.Errorf("decode work item %s: %w", msg.ID, err)
			}
			out = append(out, Delivery{Item: item, DeliveryID: msg.ID})
		}
	}
	return out, nil
}

// Ack acknowledges deliveryID.
func (q *RedisQueue) Ack(ctx context.Context, deliveryID string) error {
	if err := q.client.AckStreamMessage(ctx, streamName, groupName, deliveryID); err != nil {
		return fmt.Errorf("ack work item %s: %w", deliveryID, err)
	}
	return nil
}
