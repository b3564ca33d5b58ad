package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const countKeyPrefix = "inventory:count"

// CountCache memoises availability counts in Redis with a short TTL. It is a
// derived, best-effort view: the sale transaction never consults it, and every
// mutation deletes the affected keys rather than adjusting them in place.
type CountCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewCountCache instantiates the cache helper.
func NewCountCache(client *redis.Client, ttl time.Duration, enabled bool) *CountCache {
	return &CountCache{client: client, ttl: ttl, enabled: enabled}
}

func countKey(scopeID *int64) string {
	if scopeID == nil {
		return countKeyPrefix
	}
	return countKeyPrefix + ":" + strconv.FormatInt(*scopeID, 10)
}

// Get returns the cached count for a scope. Any error, expiry, or a disabled
// cache reads as a miss.
func (c *CountCache) Get(ctx context.Context, scopeID *int64) (int64, bool) {
	if c == nil || !c.enabled || c.client == nil {
		return 0, false
	}
	n, err := c.client.Get(ctx, countKey(scopeID)).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores the count for a scope with the configured TTL.
func (c *CountCache) Set(ctx context.Context, scopeID *int64, n int64) error {
	if c == nil || !c.enabled || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, countKey(scopeID), n, c.ttl).Err()
}

// Invalidate deletes the scope-specific key and the global key, the two
// entries any mutation of that scope can stale.
func (c *CountCache) Invalidate(ctx context.Context, scopeID int64) error {
	if c == nil || !c.enabled || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, countKey(&scopeID), countKeyPrefix).Err()
}

// Clear removes the whole count keyspace. Called on process shutdown.
func (c *CountCache) Clear(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, countKeyPrefix+"*", 0).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
