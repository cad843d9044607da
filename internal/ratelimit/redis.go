package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:chat:"

// redisAPI is the subset of *redis.Client used by Redis.
type redisAPI interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
}

// fixedWindowScript increments the counter and sets its expiry in one step.
// A key found without a TTL gets one, so a counter can never outlive the
// window.
var fixedWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if redis.call('PTTL', KEYS[1]) < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// Redis is a fixed-window counter shared by every process using the same
// Redis instance. The window starts at the first request for a key.
type Redis struct {
	client redisAPI
	limit  int64
	window time.Duration
}

// NewRedis creates a Redis limiter allowing limit requests per window.
func NewRedis(client redisAPI, limit int, window time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client must not be nil")
	}
	if limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if window < time.Second {
		return nil, errors.New("ratelimit: redis window must be at least one second")
	}
	return &Redis{client: client, limit: int64(limit), window: window}, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := fixedWindowScript.Run(ctx, r.client, []string{keyPrefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	return n <= r.limit, nil
}

// Ping checks Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NewRedisClient parses url, applies pool settings and verifies the
// connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	return client, nil
}
