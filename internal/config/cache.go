package config

import "time"

// CacheConfig defines settings for the listing response cache.  Realtime
// sessions never go through it; it only shields the REST listings from
// bursts.  When Enabled is false or no Redis client is configured, caching
// is disabled.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.  The TTL default is short because
// listings are also served live over the session socket.
func LoadCacheConfig() CacheConfig {
	cc := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 2*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cc.TTL <= 0 {
		cc.Enabled = false
	}
	return cc
}
