// Package limiter throttles public endpoints with counters kept in Redis,
// so every server instance shares one budget per client.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy decides whether one more request fits under limit for key.
// For window-based strategies window is the counting period; for the
// token bucket it sets the refill rate (limit tokens per window).
type Strategy interface {
	Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error)
}

type Manager struct {
	rdb      redis.Scripter
	strategy Strategy
	prefix   string
}

func NewManager(rdb redis.Scripter, strategy Strategy) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
		prefix:   "ratelimit:",
	}
}

// Allow namespaces key and delegates to the configured strategy.
func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, err := m.strategy.Allow(ctx, m.rdb, m.prefix+key, limit, window)
	if err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	return allowed, nil
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// FixedWindowStrategy counts requests per window with INCR and EXPIRE.
type FixedWindowStrategy struct{}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error) {
	result, err := fixedWindowScript.Run(ctx, rdb, []string{key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// TokenBucketStrategy allows bursts up to limit and refills limit tokens
// per window.
type TokenBucketStrategy struct{}

var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local info = redis.call("HMGET", KEYS[1], "tokens", "last_time")
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
	tokens = capacity
	last_time = now
end

tokens = math.min(capacity, tokens + math.max(0, now - last_time) * rate)
if tokens < 1 then
	return 0
end
redis.call("HSET", KEYS[1], "tokens", tokens - 1, "last_time", now)
redis.call("EXPIRE", KEYS[1], ttl)
return 1
`)

func (s *TokenBucketStrategy) Allow(ctx context.Context, rdb redis.Scripter, key string, limit int, window time.Duration) (bool, error) {
	rate := float64(limit) / window.Seconds()
	if rate <= 0 {
		rate = 1
	}
	ttl := int(window.Seconds()) * 2
	if ttl < 60 {
		ttl = 60
	}
	now := float64(time.Now().UnixMilli()) / 1000
	result, err := tokenBucketScript.Run(ctx, rdb, []string{key}, limit, rate, now, ttl).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// StrategyByName maps a configuration value to a Strategy. Unknown names
// fall back to the fixed window.
func StrategyByName(name string) Strategy {
	if name == "token_bucket" {
		return &TokenBucketStrategy{}
	}
	return &FixedWindowStrategy{}
}
