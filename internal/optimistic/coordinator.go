// Package optimistic applies user mutations to a view's store ahead of the
// durable write and settles them once the write returns.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/community-events/internal/identity"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/store"
)

var (
	// ErrUnauthenticated rejects a mutation attempted without a user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidation rejects malformed input, such as a blank comment.
	ErrValidation = errors.New("validation failed")
	// ErrWriteFailed wraps a durable write error.  For RSVPs the optimistic
	// change has been rolled back by the time the caller sees it.
	ErrWriteFailed = errors.New("write failed")
)

// Durable is the part of the durable store the coordinator writes through.
// Inserting an existing RSVP or deleting a missing one must succeed.
type Durable interface {
	InsertRsvp(ctx context.Context, eventID, userID string) error
	DeleteRsvp(ctx context.Context, eventID, userID string) error
	InsertComment(ctx context.Context, eventID, userID, body string) (model.Comment, error)
}

// Executor runs fn on the goroutine that owns the store and waits for it.
type Executor interface {
	Do(fn func()) error
}

// Coordinator owns the pending records of one view.  Its exported mutation
// methods may be called from any goroutine except the executor's; Pending
// and MatchEcho must be called on the executor.
type Coordinator struct {
	exec     Executor
	store    *store.Store
	durable  Durable
	identity identity.Provider
	pending  []*Record
}

func NewCoordinator(exec Executor, s *store.Store, d Durable, id identity.Provider) *Coordinator {
	if id == nil {
		id = identity.Anonymous
	}
	return &Coordinator{exec: exec, store: s, durable: d, identity: id}
}

// AddRsvp marks the current user as attending eventID.
func (c *Coordinator) AddRsvp(ctx context.Context, eventID string) error {
	return c.rsvp(ctx, KindAddRsvp, eventID)
}

// RemoveRsvp cancels the current user's RSVP on eventID.
func (c *Coordinator) RemoveRsvp(ctx context.Context, eventID string) error {
	return c.rsvp(ctx, KindRemoveRsvp, eventID)
}

func (c *Coordinator) rsvp(ctx context.Context, kind Kind, eventID string) error {
	userID, ok := c.identity.CurrentUserID()
	if !ok {
		return ErrUnauthenticated
	}
	var rec *Record
	err := c.exec.Do(func() {
		rec = c.track(newRecord(kind, eventID, userID, ""))
		c.applyRsvp(rec)
	})
	if err != nil {
		return err
	}

	if kind == KindAddRsvp {
		err = c.durable.InsertRsvp(ctx, eventID, userID)
	} else {
		err = c.durable.DeleteRsvp(ctx, eventID, userID)
	}

	werr := err
	settleErr := c.exec.Do(func() {
		if werr == nil {
			c.settle(rec, StatusConfirmed)
			return
		}
		c.rollback(rec)
		c.settle(rec, StatusRejected)
	})
	if werr != nil {
		log.Printf("optimistic: %s event=%s user=%s failed: %v", kind, eventID, userID, werr)
		return fmt.Errorf("%w: %s event %s: %w", ErrWriteFailed, kind, eventID, werr)
	}
	return settleErr
}

// applyRsvp captures r's rollback point and applies r to the store.
func (c *Coordinator) applyRsvp(r *Record) {
	r.base, _ = c.store.Event(r.EventID)
	if r.Kind == KindAddRsvp {
		c.store.Apply(store.InsertRsvp{EventID: r.EventID, UserID: r.UserID})
	} else {
		c.store.Apply(store.RemoveRsvp{EventID: r.EventID, UserID: r.UserID})
	}
}

// rollback undoes a rejected RSVP write.  The whole event returns to its
// rollback point, so changes merged into it since are discarded with it.
// Without a rollback point the event arrived after the write started and
// only this user's RSVP is taken back out.
func (c *Coordinator) rollback(r *Record) {
	if r.base != nil {
		c.store.Apply(store.RestoreEvent{EventID: r.EventID, Event: r.base})
		return
	}
	if r.Kind == KindAddRsvp {
		c.store.Apply(store.RemoveRsvp{EventID: r.EventID, UserID: r.UserID})
	}
}

// Rebase re-applies the RSVP writes still in flight after the store was
// reloaded, taking their rollback points from the reloaded events.  It
// must run on the store's loop.
func (c *Coordinator) Rebase() {
	for _, r := range c.pending {
		if r.Kind == KindAddRsvp || r.Kind == KindRemoveRsvp {
			c.applyRsvp(r)
		}
	}
}

// AddComment posts body on eventID.  The durable write happens first and
// only the authoritative comment it returns reaches the store, so the
// author name and id render correctly.  The pending record exists while
// the write is in flight.
func (c *Coordinator) AddComment(ctx context.Context, eventID, body string) (model.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return model.Comment{}, fmt.Errorf("%w: comment body is empty", ErrValidation)
	}
	userID, ok := c.identity.CurrentUserID()
	if !ok {
		return model.Comment{}, ErrUnauthenticated
	}
	var rec *Record
	if err := c.exec.Do(func() {
		rec = c.track(newRecord(KindAddComment, eventID, userID, body))
	}); err != nil {
		return model.Comment{}, err
	}

	cm, werr := c.durable.InsertComment(ctx, eventID, userID, body)
	settleErr := c.exec.Do(func() {
		if werr != nil {
			c.settle(rec, StatusRejected)
			return
		}
		rec.CommentID = cm.ID
		c.store.Apply(store.InsertComment{Comment: cm})
		c.settle(rec, StatusConfirmed)
	})
	if werr != nil {
		log.Printf("optimistic: %s event=%s user=%s failed: %v", KindAddComment, eventID, userID, werr)
		return model.Comment{}, fmt.Errorf("%w: %s event %s: %w", ErrWriteFailed, KindAddComment, eventID, werr)
	}
	return cm, settleErr
}

// Pending returns copies of the records still awaiting their write.
func (c *Coordinator) Pending() []Record {
	out := make([]Record, 0, len(c.pending))
	for _, r := range c.pending {
		out = append(out, *r)
	}
	return out
}

// MatchEcho finds the oldest pending record ch is the echo of and marks it
// echoed.  It reports whether one was found.
func (c *Coordinator) MatchEcho(ch model.Change) bool {
	for _, r := range c.pending {
		if r.matches(ch) {
			r.Echoed = true
			return true
		}
	}
	return false
}

func (c *Coordinator) track(r *Record) *Record {
	c.pending = append(c.pending, r)
	return r
}

func (c *Coordinator) settle(r *Record, st Status) {
	r.Status = st
	for i, p := range c.pending {
		if p == r {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
