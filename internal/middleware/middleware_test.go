package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/ratelimit"
	"github.com/iliyamo/community-events/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		id = "anonymous"
	}
	return c.String(http.StatusOK, id)
}

func serve(e *echo.Echo, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, "", 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	assert.Equal(t, http.StatusUnauthorized, serve(e, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "/me", "bogus").Code)

	rec := serve(e, "/me", token(t, "42"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/session", whoami, OptionalJWT(secret))

	rec := serve(e, "/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = serve(e, "/session?token="+token(t, "7"), "")
	assert.Equal(t, "7", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(e, "/session?token=bogus", "").Code)
}

func TestIdentity(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := Identity(c).CurrentUserID()
	assert.False(t, ok)

	c.Set("user_id", "9")
	id, ok := Identity(c).CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "9", id)
}

type stubLimiter struct {
	res  ratelimit.Result
	err  error
	keys []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (ratelimit.Result, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name   string
		lim    *stubLimiter
		status int
	}{
		{"allowed", &stubLimiter{res: ratelimit.Result{Allowed: true, Limit: 5, Remaining: 4}}, http.StatusOK},
		{"blocked", &stubLimiter{res: ratelimit.Result{Limit: 5, RetryAfter: 1500 * time.Millisecond}}, http.StatusTooManyRequests},
		{"redis down", &stubLimiter{err: errors.New("dial tcp")}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/me", whoami, JWTAuth(secret), RateLimit(tt.lim, false))
			rec := serve(e, "/me", token(t, "42"))
			assert.Equal(t, tt.status, rec.Code)
			require.Len(t, tt.lim.keys, 1)
			assert.Equal(t, "user:42:GET /me", tt.lim.keys[0])
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestResponseCacheDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/v1/events", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		ResponseCache(config.CacheConfig{Enabled: true}, nil))
	rec := serve(e, "/v1/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
