// Package ratelimit implements a per-key token bucket kept in Redis so that
// every server instance draws from the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/community-events/internal/config"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether the holder of key may perform one more action.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Unlimited allows everything.  It stands in when Redis is unavailable or
// limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}

var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// Bucket is a Redis-backed token bucket.
type Bucket struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

// New returns a Bucket, or Unlimited when limiting is disabled or rdb is nil.
func New(cfg config.RateLimitConfig, rdb *redis.Client) Limiter {
	if !cfg.Enabled || rdb == nil {
		return Unlimited{}
	}
	return &Bucket{rdb: rdb, cfg: cfg}
}

// Key joins parts under the configured prefix.
func Key(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	args := []interface{}{
		time.Now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL / time.Second),
	}
	vals, err := bucketScript.Run(ctx, b.rdb, []string{Key(b.cfg.Prefix, key)}, args...).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit %s: %w", key, err)
	}
	res, err := parseResult(vals)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit %s: %w", key, err)
	}
	res.Limit = b.cfg.Capacity
	return res, nil
}

func parseResult(vals interface{}) (Result, error) {
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return Result{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return Result{
		Allowed:    asInt64(arr[0]) == 1,
		Remaining:  asInt64(arr[1]),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
