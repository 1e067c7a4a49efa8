package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authz:"

// RedisCache is a Cache shared by every process using the same Redis. Generations are Redis counters,
// so an invalidation in one process is seen by all.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache returns a RedisCache whose entries expire after ttl.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func generationKey(userID string) string { return redisKeyPrefix + "gen:" + userID }

func entryKey(userID, orgID string, gen uint64) string {
	return fmt.Sprintf("%sroles:%s:%s:%d", redisKeyPrefix, userID, orgID, gen)
}

func (c *RedisCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache get generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, userID, orgID string, gen uint64) (RoleSet, bool, error) {
	val, err := c.client.Get(ctx, entryKey(userID, orgID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RoleSet{}, false, nil
	}
	if err != nil {
		return RoleSet{}, false, fmt.Errorf("cache get roles: %w", err)
	}
	var rs RoleSet
	if err := json.Unmarshal(val, &rs); err != nil {
		return RoleSet{}, false, fmt.Errorf("unmarshal roles: %w", err)
	}
	return rs, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID, orgID string, gen uint64, rs RoleSet) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	return c.client.Set(ctx, entryKey(userID, orgID, gen), data, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Incr(ctx, generationKey(userID)).Err()
}
