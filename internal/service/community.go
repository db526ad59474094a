// Package service is the durable side of a view: it reads the community
// tables through the repositories and, after every successful write,
// publishes the change so other sessions hear about it.  Publish errors are
// logged and swallowed; the write already succeeded and subscribers recover
// missed changes by refetching.
package service

import (
	"context"
	"log"

	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/model"
	"github.com/iliyamo/community-events/internal/repository"
)

// EventReader lists events.  GetByID returns repository.ErrEventNotFound
// for unknown ids.
type EventReader interface {
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (model.Event, error)
	Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
}

// RsvpStore reads and writes RSVPs.  Insert and Delete report whether a
// row actually changed.
type RsvpStore interface {
	ListAll(ctx context.Context) (map[string][]model.Rsvp, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Rsvp, error)
	Insert(ctx context.Context, eventID, userID string) (bool, error)
	Delete(ctx context.Context, eventID, userID string) (bool, error)
}

// CommentStore reads and writes comments.
type CommentStore interface {
	ListByEvent(ctx context.Context, eventID string) ([]model.Comment, error)
	Insert(ctx context.Context, eventID, userID, body string) (model.Comment, error)
}

// UserNames resolves display names.
type UserNames interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Community implements the durable store used by views.
type Community struct {
	events   EventReader
	rsvps    RsvpStore
	comments CommentStore
	users    UserNames
	pub      feed.Publisher // may be nil
}

func NewCommunity(events EventReader, rsvps RsvpStore, comments CommentStore, users UserNames, pub feed.Publisher) *Community {
	return &Community{events: events, rsvps: rsvps, comments: comments, users: users, pub: pub}
}

// FetchEvents returns every event with its RSVPs, ordered by date.
func (c *Community) FetchEvents(ctx context.Context) ([]model.Event, error) {
	evs, err := c.events.List(ctx)
	if err != nil {
		return nil, err
	}
	byEvent, err := c.rsvps.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range evs {
		evs[i].Rsvps = append([]model.Rsvp{}, byEvent[evs[i].ID]...)
	}
	model.SortEvents(evs)
	return evs, nil
}

// SearchEvents returns one page of events matching q with their RSVPs, and
// the number of matches across all pages.
func (c *Community) SearchEvents(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error) {
	evs, total, err := c.events.Search(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	byEvent, err := c.rsvps.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	for i := range evs {
		evs[i].Rsvps = append([]model.Rsvp{}, byEvent[evs[i].ID]...)
	}
	model.SortEvents(evs)
	return evs, total, nil
}

// FetchEvent returns one event with its RSVPs.
func (c *Community) FetchEvent(ctx context.Context, id string) (model.Event, error) {
	ev, err := c.events.GetByID(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if ev.Rsvps, err = c.rsvps.ListByEvent(ctx, id); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// FetchComments returns the comments of one event, newest first.
func (c *Community) FetchComments(ctx context.Context, eventID string) ([]model.Comment, error) {
	cs, err := c.comments.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	model.SortComments(cs)
	return cs, nil
}

// CreatorName resolves the display name of an event creator.
func (c *Community) CreatorName(ctx context.Context, userID string) (string, error) {
	return c.users.DisplayName(ctx, userID)
}

func (c *Community) InsertRsvp(ctx context.Context, eventID, userID string) error {
	changed, err := c.rsvps.Insert(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if changed {
		c.publish(ctx, model.KindInsert, &model.Rsvp{EventID: eventID, UserID: userID}, nil)
	}
	return nil
}

func (c *Community) DeleteRsvp(ctx context.Context, eventID, userID string) error {
	changed, err := c.rsvps.Delete(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if changed {
		c.publish(ctx, model.KindDelete, nil, &model.Rsvp{EventID: eventID, UserID: userID})
	}
	return nil
}

// InsertComment stores a comment and returns the authoritative row.
func (c *Community) InsertComment(ctx context.Context, eventID, userID, body string) (model.Comment, error) {
	cm, err := c.comments.Insert(ctx, eventID, userID, body)
	if err != nil {
		return model.Comment{}, err
	}
	c.publish(ctx, model.KindInsert, &cm, nil)
	return cm, nil
}

func (c *Community) publish(ctx context.Context, kind model.Kind, newEnt, oldEnt model.Entity) {
	if c.pub == nil {
		return
	}
	m, err := feed.NewMessage(kind, newEnt, oldEnt)
	if err != nil {
		log.Printf("service: build %s message failed: %v", kind, err)
		return
	}
	if err := c.pub.Publish(ctx, m); err != nil {
		log.Printf("service: publish %s %s failed: %v", m.Kind, m.Table, err)
	}
}
