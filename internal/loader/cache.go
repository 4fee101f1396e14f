package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/config"
	"github.com/redis/go-redis/v9"
)

// SnapshotKey holds the last fetched payload in Redis.
const SnapshotKey = "alertview:rules:snapshot"

// SnapshotCache keeps the last raw payload across restarts.
type SnapshotCache interface {
	Get(ctx context.Context) ([]alertlist.RawAlertRule, bool, error)
	Put(ctx context.Context, rules []alertlist.RawAlertRule) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context) ([]alertlist.RawAlertRule, bool, error) { return nil, false, nil }
func (NoopCache) Put(context.Context, []alertlist.RawAlertRule) error         { return nil }

type RedisCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, key: SnapshotKey, ttl: ttl}
}

// NewRedisClientFromConfig constructs a redis client from app config.
func NewRedisClientFromConfig(c *config.RedisConfig) *redis.Client {
	if c == nil {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

// NewCacheFromConfig returns a RedisCache when redis is enabled, else NoopCache.
func NewCacheFromConfig(c *config.RedisConfig) SnapshotCache {
	if c == nil || !c.Enabled {
		return NoopCache{}
	}
	return NewRedisCache(NewRedisClientFromConfig(c), config.DurationOr(c.TTL, 24*time.Hour))
}

func (c *RedisCache) Get(ctx context.Context) ([]alertlist.RawAlertRule, bool, error) {
	b, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var rules []alertlist.RawAlertRule
	if err := json.Unmarshal(b, &rules); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if rules == nil {
		rules = []alertlist.RawAlertRule{}
	}
	return rules, true, nil
}

func (c *RedisCache) Put(ctx context.Context, rules []alertlist.RawAlertRule) error {
	b, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}
