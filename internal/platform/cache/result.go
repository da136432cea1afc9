package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// KeyPrefix namespaces allocation results in the shared keyspace.
const KeyPrefix = "matrix:alloc:"

// ResultCache stores JSON-encoded results under content-addressed keys.
// A nil *ResultCache behaves as an always-miss cache.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache wraps c. A non-positive ttl stores entries without expiry.
func NewResultCache(c *Cache, ttl time.Duration) *ResultCache {
	if c == nil {
		return nil
	}
	return &ResultCache{client: c.client, ttl: ttl}
}

// Key derives the cache key for a request. encoding/json writes struct
// fields in declaration order and map keys sorted, so equal requests share
// a key.
func Key(request any) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := blake2b.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}

// Get decodes the entry at key into dst. It reports false on a miss.
func (rc *ResultCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if rc == nil {
		return false, nil
	}
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cached result: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached result: %w", err)
	}
	return true, nil
}

// Set stores v at key.
func (rc *ResultCache) Set(ctx context.Context, key string, v any) error {
	if rc == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached result: %w", err)
	}
	if err := rc.client.Set(ctx, key, data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("set cached result: %w", err)
	}
	return nil
}
