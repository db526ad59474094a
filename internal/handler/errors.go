package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/loop"
	"github.com/iliyamo/community-events/internal/optimistic"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errUnknownOp   = errors.New("unknown op")
)

// statusFor maps mutation errors to HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, optimistic.ErrUnauthenticated):
		return http.StatusUnauthorized, "sign in required"
	case errors.Is(err, optimistic.ErrValidation):
		return http.StatusBadRequest, "comment must not be empty"
	case errors.Is(err, optimistic.ErrWriteFailed):
		return http.StatusBadGateway, "write failed, please retry"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, errUnknownOp):
		return http.StatusBadRequest, "unknown op"
	case errors.Is(err, loop.ErrClosed):
		return http.StatusGone, "session closed"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("request failed: %v", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}
