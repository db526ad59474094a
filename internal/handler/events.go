package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/optimistic"
	"github.com/iliyamo/community-events/internal/repository"
)

// EventStore is the durable store behind the REST endpoints.
type EventStore interface {
	optimistic.Durable
	FetchEvents(ctx context.Context) ([]model.Event, error)
	FetchEvent(ctx context.Context, id string) (model.Event, error)
	SearchEvents(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
	FetchComments(ctx context.Context, eventID string) ([]model.Comment, error)
}

// EventsHandler serves the REST view of events.  Writes go straight to the
// durable store, which publishes them to live sessions.
type EventsHandler struct {
	store EventStore
}

func NewEventsHandler(s EventStore) *EventsHandler { return &EventsHandler{store: s} }

// ListEvents handles GET /v1/events.
func (h *EventsHandler) ListEvents(c echo.Context) error {
	evs, err := h.store.FetchEvents(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": evs})
}

// SearchEvents handles GET /v1/events/search.
// q: substring of the title or description; category: one tag;
// when: "upcoming", "past" or empty for any date.
func (h *EventsHandler) SearchEvents(c echo.Context) error {
	when, err := model.ParseWhen(c.QueryParam("when"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "when must be upcoming or past"})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}

	q := repository.EventSearchQuery{
		EventFilter: model.EventFilter{
			Text:     strings.TrimSpace(c.QueryParam("q")),
			Category: strings.TrimSpace(c.QueryParam("category")),
			When:     when,
		},
		Page:     page,
		PageSize: ps,
	}
	evs, total, err := h.store.SearchEvents(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"events":    evs,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// GetEvent handles GET /v1/events/:id.
func (h *EventsHandler) GetEvent(c echo.Context) error {
	ev, err := h.store.FetchEvent(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ListComments handles GET /v1/events/:id/comments.
func (h *EventsHandler) ListComments(c echo.Context) error {
	cs, err := h.store.FetchComments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"comments": cs})
}

// AddRsvp handles POST /v1/events/:id/rsvp.  Repeating it is harmless.
func (h *EventsHandler) AddRsvp(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, optimistic.ErrUnauthenticated)
	}
	if err := h.store.InsertRsvp(c.Request().Context(), c.Param("id"), uid); err != nil {
		return writeError(c, fmt.Errorf("%w: %w", optimistic.ErrWriteFailed, err))
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveRsvp handles DELETE /v1/events/:id/rsvp.
func (h *EventsHandler) RemoveRsvp(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, optimistic.ErrUnauthenticated)
	}
	if err := h.store.DeleteRsvp(c.Request().Context(), c.Param("id"), uid); err != nil {
		return writeError(c, fmt.Errorf("%w: %w", optimistic.ErrWriteFailed, err))
	}
	return c.NoContent(http.StatusNoContent)
}

type commentRequest struct {
	Content string `json:"content"`
}

// AddComment handles POST /v1/events/:id/comments.
func (h *EventsHandler) AddComment(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return writeError(c, optimistic.ErrUnauthenticated)
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return writeError(c, optimistic.ErrValidation)
	}
	cm, err := h.store.InsertComment(c.Request().Context(), c.Param("id"), uid, req.Content)
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %w", optimistic.ErrWriteFailed, err))
	}
	return c.JSON(http.StatusCreated, cm)
}
