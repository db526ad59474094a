package store

import "github.com/iliyamo/community-events/internal/model"

// Mutation is one of the operations Apply accepts.  Every mutation is a
// total function over the current state.
type Mutation interface {
	apply(s *Store) bool
}

// InsertEvent adds an event, or replaces the scalar fields of an event with
// the same id while keeping its RSVPs and comments.
type InsertEvent struct{ Event model.Event }

// RemoveEvent drops an event and everything nested in it.
type RemoveEvent struct{ EventID string }

// InsertRsvp marks UserID as attending EventID.
type InsertRsvp struct{ EventID, UserID string }

// RemoveRsvp clears the RSVP of UserID on EventID.
type RemoveRsvp struct{ EventID, UserID string }

// InsertComment adds a comment to its event, keeping newest-first order.
type InsertComment struct{ Comment model.Comment }

// RestoreEvent puts back a previously captured snapshot of one event.  A
// nil Event removes the event, restoring a state where it was absent.
type RestoreEvent struct {
	EventID string
	Event   *model.Event
}

func (m InsertEvent) apply(s *Store) bool {
	ev := m.Event.Clone().Normalize()
	cur, ok := s.events[ev.ID]
	if !ok {
		s.events[ev.ID] = ev
		return true
	}
	ev.Rsvps = cur.Rsvps
	ev.Comments = cur.Comments
	if sameScalars(cur, ev) {
		return false
	}
	s.events[ev.ID] = ev
	return true
}

func (m RemoveEvent) apply(s *Store) bool {
	if _, ok := s.events[m.EventID]; !ok {
		return false
	}
	delete(s.events, m.EventID)
	return true
}

func (m InsertRsvp) apply(s *Store) bool {
	ev, ok := s.events[m.EventID]
	if !ok || ev.HasRsvp(m.UserID) {
		return false
	}
	ev.Rsvps = append(ev.Rsvps, model.Rsvp{EventID: m.EventID, UserID: m.UserID})
	return true
}

func (m RemoveRsvp) apply(s *Store) bool {
	ev, ok := s.events[m.EventID]
	if !ok || !ev.HasRsvp(m.UserID) {
		return false
	}
	out := ev.Rsvps[:0]
	for _, r := range ev.Rsvps {
		if r.UserID != m.UserID {
			out = append(out, r)
		}
	}
	ev.Rsvps = out
	return true
}

func (m InsertComment) apply(s *Store) bool {
	ev, ok := s.events[m.Comment.EventID]
	if !ok || m.Comment.ID == "" || ev.HasComment(m.Comment.ID) {
		return false
	}
	c := m.Comment
	ev.Comments = append(ev.Comments, *c.Normalize())
	model.SortComments(ev.Comments)
	return true
}

func (m RestoreEvent) apply(s *Store) bool {
	if m.Event == nil {
		return RemoveEvent{EventID: m.EventID}.apply(s)
	}
	s.events[m.EventID] = m.Event.Clone().Normalize()
	return true
}

func sameScalars(a, b *model.Event) bool {
	if a.Title != b.Title || a.Description != b.Description || !a.Date.Equal(b.Date) ||
		a.Location != b.Location || a.CreatedBy != b.CreatedBy || a.CreatorName != b.CreatorName ||
		!a.CreatedAt.Equal(b.CreatedAt) || len(a.Categories) != len(b.Categories) {
		return false
	}
	for i := range a.Categories {
		if a.Categories[i] != b.Categories[i] {
			return false
		}
	}
	return true
}
