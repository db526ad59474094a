package middleware

// identity.go turns the user id the JWT middleware stored in the Echo
// context into the identity.Provider the views consume.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/identity"
)

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (string, bool) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// Identity returns the request's identity provider; anonymous when no
// token was presented.
func Identity(c echo.Context) identity.Provider {
	if id, ok := UserID(c); ok {
		return identity.Static(id)
	}
	return identity.Anonymous
}
