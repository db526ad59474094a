package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/ratelimit"
)

// RateLimit draws one token per request from the caller's bucket.  Buckets
// are per user for authenticated requests and per IP otherwise.  Redis
// errors fail open.
func RateLimit(l ratelimit.Limiter, debug bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := RateKey(c, c.Request().Method+" "+c.Path())
			res, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				if debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}
			if res.Limit > 0 {
				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			}
			if !res.Allowed {
				secs := RetrySeconds(res)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if debug {
					c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, res.RetryAfter)
				}
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// RateKey names the bucket for the caller of c and the given action.
func RateKey(c echo.Context, action string) string {
	if uid, ok := UserID(c); ok {
		return ratelimit.Key("user", uid, action)
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return ratelimit.Key("ip", ip, action)
}

// RetrySeconds rounds the retry delay up to whole seconds.
func RetrySeconds(res ratelimit.Result) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return secs
}
