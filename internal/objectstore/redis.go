package objectstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/redis"
)

// RedisStore is a content-addressed blob store backed by Redis strings,
// keyed sha256:<hex>. Same hash scheme and cas:%s key namespace as a
// generic CAS client, generalized to the engine's node-output store
// and given a retention TTL since outputs are retained for a bounded
// window, not forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an already-connected redis.Client. ttl of zero
// means objects never expire.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func casKey(contentHash string) string {
	return fmt.Sprintf("cas:%s", contentHash)
}

// Put hashes data with SHA-256 and stores it under the resulting key.
func (s *RedisStore) Put(ctx context.Context, data []byte) (string, error) {
	hash := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	if err := s.client.SetWithExpiry(ctx, casKey(hash), string(data), s.ttl); err != nil {
		return "", fmt.Errorf("objectstore put %s: %w", hash, err)
	}
	return hash, nil
}

// Get retrieves the bytes stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, casKey(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return []byte(data), nil
}

// Delete removes the blob stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, casKey(key)); err != nil {
		return fmt.Errorf("objectstore delete %s: %w", key, err)
	}
	return nil
}
