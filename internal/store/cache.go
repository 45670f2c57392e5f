package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache stores rendered research results keyed by topic and depth so a
// repeated question can replay the annotations and answer without paying for
// a fresh research run. Misses and transport errors are indistinguishable to
// callers: both return ok=false.
type ReplayCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReplayCache connects to Redis. TTL <= 0 disables expiry.
func NewReplayCache(addr, password string, db int, ttl time.Duration) *ReplayCache {
	return &ReplayCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func cacheKey(topic, depth string) string {
	sum := sha256.Sum256([]byte(depth + "\x00" + topic))
	return "quest:research:" + hex.EncodeToString(sum[:])
}

// Get returns a cached payload for the topic, if present.
func (c *ReplayCache) Get(ctx context.Context, topic, depth string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.client.Get(ctx, cacheKey(topic, depth)).Bytes()
	if err != nil {
		// redis.Nil and transport trouble are both just misses
		return nil, false
	}
	return b, true
}

// Set stores a payload. Failures are dropped; the cache is best effort.
func (c *ReplayCache) Set(ctx context.Context, topic, depth string, payload []byte) {
	if c == nil {
		return
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	_ = c.client.Set(ctx, cacheKey(topic, depth), payload, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *ReplayCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
