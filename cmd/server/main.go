package main // Entry point package

import (
	"context"
	"log" // Logging library

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/community-events/internal/activity"
	"github.com/iliyamo/community-events/internal/config"   // Internal config loader
	"github.com/iliyamo/community-events/internal/database" // MySQL connection and schema
	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/handler"
	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/ratelimit"
	"github.com/iliyamo/community-events/internal/repository"
	"github.com/iliyamo/community-events/internal/router" // Internal router setup
	"github.com/iliyamo/community-events/internal/service"
	"github.com/iliyamo/community-events/internal/view"
)

func main() {
	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			log.Fatal(err)
		}
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	fc := config.LoadFeedConfig()
	transport, publisher, closeFeed := openFeed(fc, rdb)
	defer closeFeed()

	community := service.NewCommunity(
		repository.NewEventRepo(db),
		repository.NewRsvpRepo(db),
		repository.NewCommentRepo(db),
		repository.NewUserRepo(db),
		publisher,
	)
	feedOpts := feed.Options{MinBackoff: fc.MinBackoff, MaxBackoff: fc.MaxBackoff, MaxFailures: fc.MaxFailures}
	if fc.ActivityDir != "" {
		stop, err := activity.Start(context.Background(), transport, feedOpts, fc.ActivityDir)
		if err != nil {
			log.Fatalf("activity: %v", err)
		}
		defer stop()
	}
	open := func(ctx context.Context, id identity.Provider, onDropped func(feed.Topic, error)) (*view.View, error) {
		return view.Open(ctx, view.Options{
			Source:    community,
			Transport: transport,
			Identity:  id,
			Feed:      feedOpts,
			OnDropped: onDropped,
		})
	}

	rl := config.LoadRateLimitConfig()
	limiter := ratelimit.New(rl, rdb)

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e, db)
	router.RegisterEvents(e, handler.NewEventsHandler(community), cfg.JWTSecret,
		middleware.ResponseCache(config.LoadCacheConfig(), rdb),
		middleware.RateLimit(limiter, rl.Debug))
	router.RegisterSession(e, handler.NewSessionHandler(open, limiter), cfg.JWTSecret)

	addr := ":" + cfg.Port                                                     // Address string with port
	log.Printf("listening on %s (env=%s, feed=%s)", addr, cfg.Env, fc.Backend) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}

// openFeed builds the change feed transport and the publisher the durable
// store announces its writes on.
func openFeed(fc config.FeedConfig, rdb *redis.Client) (feed.Transport, feed.Publisher, func()) {
	switch fc.Backend {
	case "redis":
		if rdb == nil {
			log.Fatal("feed: FEED_BACKEND=redis but Redis is unreachable")
		}
		return feed.NewRedisTransport(rdb, fc.Prefix), feed.NewRedisPublisher(rdb, fc.Prefix), func() {}
	case "amqp":
		pub := feed.NewAMQPPublisher(fc.AMQPURL, fc.Exchange)
		return feed.NewAMQPTransport(fc.AMQPURL, fc.Exchange), pub, func() { _ = pub.Close() }
	case "memory":
		m := feed.NewMemory()
		return m, m, m.Reset
	}
	log.Fatalf("feed: unknown FEED_BACKEND %q", fc.Backend)
	return nil, nil, nil
}
