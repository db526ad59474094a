package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/community-events/internal/handler"    // handlers that implement each endpoint
	"github.com/iliyamo/community-events/internal/middleware" // JWT, rate limit and cache middleware
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check, which also pings db.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterEvents registers the REST endpoints for events.  Listings are
// public and go through the response cache; writes require a valid access
// token and draw from the caller's rate limit bucket.
func RegisterEvents(e *echo.Echo, h *handler.EventsHandler, jwtSecret string, cache, limit echo.MiddlewareFunc) {
	e.GET("/v1/events", h.ListEvents, cache)
	e.GET("/v1/events/search", h.SearchEvents, cache)
	e.GET("/v1/events/:id", h.GetEvent, cache)
	e.GET("/v1/events/:id/comments", h.ListComments, cache)

	auth := e.Group("/v1/events", middleware.JWTAuth(jwtSecret), limit)
	auth.POST("/:id/rsvp", h.AddRsvp)
	auth.DELETE("/:id/rsvp", h.RemoveRsvp)
	auth.POST("/:id/comments", h.AddComment)
}

// RegisterSession registers the live session socket.  Anonymous clients may
// connect and watch; their write commands are refused.  The session handler
// rate limits commands itself since they do not arrive as requests.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler, jwtSecret string) {
	e.GET("/v1/session", s.Serve, middleware.OptionalJWT(jwtSecret))
}
