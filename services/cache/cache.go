// Package cache is a Redis-backed store for recent scan results, keyed by
// symbol and settings hash so a parameter change never serves stale signals.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache wraps a Redis client with JSON encoding and a key prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects a cache with the given default TTL.
func New(addr, password string, db int, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "emascan:",
		ttl:    ttl,
	}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ScanKey builds the cache key for one symbol's scan under one settings set.
func ScanKey(symbol, settingsHash string) string {
	return fmt.Sprintf("scan:%s:%s", symbol, settingsHash)
}

// Set stores value as JSON under the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Get loads a JSON value. Returns false on a miss, an error only on a real
// failure.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("unmarshal cache value: %w", err)
	}
	return true, nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
