package config

import "time"

// RateLimitConfig tunes the Redis token bucket shared by the REST write
// routes and the session socket commands.  Buckets are keyed per user, so an
// account sharing many sockets shares one budget.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int // bucket size, the largest burst allowed
	RefillTokens   int // tokens added every RefillInterval
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	Prefix         string
	Debug          bool // expose X-RateLimit-* headers
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  RATE_LIMIT_BURST is an
// alias for RATE_LIMIT_CAPACITY and wins when both are set.
func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_BURST", envInt("RATE_LIMIT_CAPACITY", 20)),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	return rl.normalize()
}

// normalize clamps values the bucket script cannot work with.  A bucket
// must outlive a few refills or it would reset to full while idle.
func (rl RateLimitConfig) normalize() RateLimitConfig {
	rl.Capacity = max(rl.Capacity, 1)
	rl.RefillTokens = max(rl.RefillTokens, 1)
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	rl.TTL = max(rl.TTL, 5*rl.RefillInterval)
	return rl
}
