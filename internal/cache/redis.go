package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/cunhao-core/internal/config"
)

// OutboxKey holds notifications whose delivery failed, oldest first.
const OutboxKey = "cunhao:notify:outbox"

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// Push appends a serialized notification to the outbox.
func (c *RedisCache) Push(ctx context.Context, payload []byte) error {
	return c.Client.RPush(ctx, OutboxKey, payload).Err()
}

// Pop removes the oldest outbox entry. An empty outbox returns (nil, nil).
func (c *RedisCache) Pop(ctx context.Context) ([]byte, error) {
	b, err := c.Client.LPop(ctx, OutboxKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // empty
	} else if err != nil {
		return nil, err
	}
	return b, nil
}

// Len reports how many notifications wait for redelivery.
func (c *RedisCache) Len(ctx context.Context) (int64, error) {
	return c.Client.LLen(ctx, OutboxKey).Result()
}

// Lock takes a short-lived lock so only one worker drains the outbox at a time.
func (c *RedisCache) Lock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, "cunhao:lock:"+name, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (c *RedisCache) Unlock(ctx context.Context, name string) error {
	return c.Client.Del(ctx, "cunhao:lock:"+name).Err()
}
