package runqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/redis"
)

const streamName = "runqueue:starts"
const groupName = "engine"

// RedisQueue is a durable run-start queue backed by one Redis stream,
// consumed through a consumer group exactly like
// internal/workqueue.RedisQueue — grounded on the same
// common/redis.Client stream wrapper, reused here for a different
// payload shape.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an already-connected redis.Client and ensures the
// engine's consumer group exists.
func NewRedisQueue(ctx context.Context, client *redis.Client) (*RedisQueue, error) {
	if err := client.CreateStreamGroup(ctx, streamName, groupName); err != nil {
		return nil, fmt.Errorf("create runqueue consumer group: %w", err)
	}
	return &RedisQueue{client: client}, nil
}

// Publish enqueues req.
func (q *RedisQueue) Publish(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	if _, err := q.client.AddToStream(ctx, streamName, map[string]interface{}{
		"payload": string(payload),
	}); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	return nil
}

// Consume reads up to count undelivered or expired-claim requests for
// consumerID, blocking up to block if none are ready yet.
func (q *RedisQueue) Consume(ctx context.Context, consumerID string, count int64, block time.Duration) ([]Delivery, error) {
	streams, err := q.client.ReadFromStreamGroup(ctx, groupName, consumerID, streamName, count, block)
	if err != nil {
		return nil, fmt.Errorf("consume run requests: %w", err)
	}

	var out []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var req Request
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				return nil, fmt.Errorf("decode run request %s: %w", msg.ID, err)
			}
			out = append(out, Delivery{Request: req, DeliveryID: msg.ID})
		}
	}
	return out, nil
}

// Ack acknowledges deliveryID.
func (q *RedisQueue) Ack(ctx context.Context, deliveryID string) error {
	if err := q.client.AckStreamMessage(ctx, streamName, groupName, deliveryID); err != nil {
		return fmt.Errorf("ack run request %s: %w", deliveryID, err)
	}
	return nil
}
