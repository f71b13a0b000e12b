package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BreakdownCache is a Redis-backed BreakdownCachePort. Failures degrade to
// cache misses; the store stays authoritative.
type BreakdownCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBreakdownCache constructs the cache.
func NewBreakdownCache(client *redis.Client, ttl time.Duration) *BreakdownCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BreakdownCache{client: client, ttl: ttl}
}

func breakdownKey(designID int64) string {
	return fmt.Sprintf("billing:breakdown:%d", designID)
}

// Get returns the cached breakdown when present.
func (c *BreakdownCache) Get(ctx context.Context, designID int64) (*Breakdown, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, breakdownKey(designID)).Bytes()
	if err != nil {
		return nil, false
	}
	var b Breakdown
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, false
	}
	return &b, true
}

// Set stores the breakdown with the configured TTL.
func (c *BreakdownCache) Set(ctx context.Context, designID int64, b Breakdown) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, breakdownKey(designID), data, c.ttl).Err()
}

// Invalidate drops the cached breakdown after a mutation.
func (c *BreakdownCache) Invalidate(ctx context.Context, designID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, breakdownKey(designID)).Err()
}
