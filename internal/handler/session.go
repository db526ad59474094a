package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/ratelimit"
	"github.com/iliyamo/community-events/internal/view"
)

const (
	writeTimeout    = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 50 * time.Second
	maxCommandBytes = 8 << 10
)

// Opener starts the view behind one socket.  onDropped is told when a feed
// subscription keeps failing.
type Opener func(ctx context.Context, id identity.Provider, onDropped func(feed.Topic, error)) (*view.View, error)

// SessionHandler serves GET /v1/session: a WebSocket carrying one live
// view.  The server pushes a snapshot after every store change (coalesced)
// and answers each command with a result.
type SessionHandler struct {
	open    Opener
	limiter ratelimit.Limiter
	upgr    websocket.Upgrader
}

func NewSessionHandler(open Opener, l ratelimit.Limiter) *SessionHandler {
	if l == nil {
		l = ratelimit.Unlimited{}
	}
	return &SessionHandler{
		open:    open,
		limiter: l,
		upgr: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type command struct {
	Op      string `json:"op"` // rsvp | cancel_rsvp | comment | open_event | close_event | refetch
	EventID string `json:"event_id"`
	Body    string `json:"body"`
	Ref     string `json:"ref"`
}

type snapshotMsg struct {
	Type    string        `json:"type"`
	Version uint64        `json:"version"`
	Detail  string        `json:"detail,omitempty"`
	Events  []model.Event `json:"events"`
}

type resultMsg struct {
	Type    string         `json:"type"`
	Ref     string         `json:"ref,omitempty"`
	Error   string         `json:"error,omitempty"`
	Comment *model.Comment `json:"comment,omitempty"`
}

type noticeMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Error string `json:"error"`
}

// session is the per-socket state shared by the reader and the writer.
type session struct {
	ws    *websocket.Conn
	send  chan interface{}
	dirty chan struct{}
	done  chan struct{} // closed when the writer exits
}

func (s *session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// push queues m for the writer.  It gives up once the writer has exited.
func (s *session) push(m interface{}) {
	select {
	case s.send <- m:
	case <-s.done:
	}
}

// dropped may run before the socket is upgraded, so it never blocks.
func (s *session) dropped(t feed.Topic, err error) {
	select {
	case s.send <- noticeMsg{Type: "notice", Topic: t.String(), Error: "live updates interrupted, retrying"}:
	default:
	}
	log.Printf("session: %v", err)
}

func (s *session) writeJSON(m interface{}) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.ws.WriteJSON(m)
}

func (s *session) write(ctx context.Context, v *view.View) {
	defer close(s.done)
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-s.dirty:
			snap, err := v.Snapshot(ctx)
			if err != nil {
				return
			}
			msg := snapshotMsg{Type: "snapshot", Version: snap.Version, Detail: v.DetailID(), Events: snap.Events}
			if err := s.writeJSON(msg); err != nil {
				return
			}
		case m := <-s.send:
			if err := s.writeJSON(m); err != nil {
				return
			}
		case <-t.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = s.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Serve handles GET /v1/session.
func (h *SessionHandler) Serve(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	s := &session{send: make(chan interface{}, 32), dirty: make(chan struct{}, 1), done: make(chan struct{})}
	v, err := h.open(ctx, middleware.Identity(c), s.dropped)
	if err != nil {
		log.Printf("session: open view failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "events unavailable"})
	}
	defer v.Close()

	ws, err := h.upgr.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Printf("session: upgrade failed: %v", err)
		return nil
	}
	defer ws.Close()
	s.ws = ws

	stop, err := v.Watch(func(uint64) { s.markDirty() })
	if err != nil {
		return nil
	}
	defer stop()
	s.markDirty()
	go s.write(ctx, v)

	ws.SetReadLimit(maxCommandBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s: read failed: %v", v.ID(), err)
			}
			break
		}
		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.push(resultMsg{Type: "result", Error: "malformed command"})
			continue
		}
		s.push(h.dispatch(ctx, c, v, cmd))
	}
	cancel()
	<-s.done
	return nil
}

func (h *SessionHandler) dispatch(ctx context.Context, c echo.Context, v *view.View, cmd command) resultMsg {
	res := resultMsg{Type: "result", Ref: cmd.Ref}
	var err error
	switch cmd.Op {
	case "rsvp", "cancel_rsvp", "comment":
		err = h.allow(ctx, c)
	}
	if err == nil {
		switch cmd.Op {
		case "rsvp":
			err = v.AddRsvp(ctx, cmd.EventID)
		case "cancel_rsvp":
			err = v.RemoveRsvp(ctx, cmd.EventID)
		case "comment":
			var cm model.Comment
			if cm, err = v.AddComment(ctx, cmd.EventID, cmd.Body); err == nil {
				res.Comment = &cm
			}
		case "open_event":
			err = v.OpenEvent(ctx, cmd.EventID)
		case "close_event":
			err = v.CloseEvent()
		case "refetch":
			err = v.Refetch(ctx)
		default:
			err = fmt.Errorf("%w %q", errUnknownOp, cmd.Op)
		}
	}
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Printf("session %s: %s failed: %v", v.ID(), cmd.Op, err)
		}
		res.Error = msg
	}
	return res
}

func (h *SessionHandler) allow(ctx context.Context, c echo.Context) error {
	res, err := h.limiter.Allow(ctx, middleware.RateKey(c, "session"))
	if err != nil {
		return nil // fail open
	}
	if !res.Allowed {
		return fmt.Errorf("%w, retry in %ds", errRateLimited, middleware.RetrySeconds(res))
	}
	return nil
}
