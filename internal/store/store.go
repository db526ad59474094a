// Package store holds the in-memory collection of events the views render
// from.  A Store is owned by a single event loop and is not safe for
// concurrent use; every change goes through Apply.
package store

import "github.com/iliyamo/community-events/internal/model"

// Store is the canonical in-memory state of one view.
type Store struct {
	events    map[string]*model.Event
	version   uint64
	observers map[int]func(version uint64)
	nextObs   int
}

// New returns a store seeded with the given events.
func New(events []model.Event) *Store {
	s := &Store{
		events:    make(map[string]*model.Event, len(events)),
		observers: make(map[int]func(uint64)),
	}
	for _, ev := range events {
		s.events[ev.ID] = ev.Clone().Normalize()
	}
	return s
}

// Apply runs m against the current state.  It returns false when m left the
// state untouched, in which case no observer is notified.
func (s *Store) Apply(m Mutation) bool {
	if !m.apply(s) {
		return false
	}
	s.version++
	s.notify()
	return true
}

// Reset replaces the whole collection, as after a full refetch.
func (s *Store) Reset(events []model.Event) {
	s.events = make(map[string]*model.Event, len(events))
	for _, ev := range events {
		s.events[ev.ID] = ev.Clone().Normalize()
	}
	s.version++
	s.notify()
}

// Version increases by one for every change.
func (s *Store) Version() uint64 { return s.version }

// Len returns the number of events held.
func (s *Store) Len() int { return len(s.events) }

// Event returns a copy of one event.
func (s *Store) Event(id string) (*model.Event, bool) {
	ev, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return ev.Clone(), true
}

// Events returns copies of all events ordered by date.
func (s *Store) Events() []model.Event {
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev.Clone())
	}
	model.SortEvents(out)
	return out
}

// Observe registers fn to be called after each change.  The returned func
// removes the observer.
func (s *Store) Observe(fn func(version uint64)) (cancel func()) {
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

func (s *Store) notify() {
	for _, fn := range s.observers {
		fn(s.version)
	}
}
