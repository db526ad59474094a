package config

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server behind the feed, the rate limiter
// buckets and the listing cache.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	PingTimeout time.Duration
}

// LoadRedisConfig reads REDIS_ADDR (or REDIS_HOST + REDIS_PORT, which win
// when both are set), REDIS_PASSWORD, REDIS_DB, REDIS_TLS and
// REDIS_PING_TIMEOUT.
func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:        addr,
		Password:    envStr("REDIS_PASSWORD", ""),
		DB:          envInt("REDIS_DB", 0),
		TLS:         envBool("REDIS_TLS", false),
		PingTimeout: envDur("REDIS_PING_TIMEOUT", 2*time.Second),
	}
}

// NewRedisClient connects with LoadRedisConfig.  It returns nil when the
// server does not answer a ping; callers then run without caching and rate
// limiting, and a Redis-backed feed refuses to start.
func NewRedisClient() *redis.Client {
	rc := LoadRedisConfig()
	opts := &redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB}
	if rc.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), rc.PingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis: ping %s failed: %v", rc.Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}
