package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/community-events/internal/model"
)

// ErrMalformed marks a message that could not be decoded.  Such messages are
// skipped; they never end a subscription.
var ErrMalformed = errors.New("malformed change message")

// Message is the JSON form of a change notification as it travels over a
// transport.  EventID is the event the row belongs to and drives routing
// for per-event subscriptions.
type Message struct {
	Kind        model.Kind      `json:"kind"`
	Table       model.Table     `json:"table"`
	EventID     string          `json:"event_id"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewMessage builds a message for a change to one entity.  Either entity
// may be nil but not both.
func NewMessage(kind model.Kind, newEnt, oldEnt model.Entity) (Message, error) {
	subject := newEnt
	if subject == nil {
		subject = oldEnt
	}
	if subject == nil {
		return Message{}, fmt.Errorf("%w: no entity", ErrMalformed)
	}
	m := Message{
		Kind:        kind,
		Table:       subject.Table(),
		EventID:     eventIDOf(subject),
		CommittedAt: time.Now().UTC(),
	}
	var err error
	if newEnt != nil {
		if m.New, err = json.Marshal(newEnt); err != nil {
			return Message{}, err
		}
	}
	if oldEnt != nil {
		if m.Old, err = json.Marshal(oldEnt); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

// Decode turns the message into a normalized model.Change.
func (m Message) Decode() (model.Change, error) {
	if !m.Kind.Valid() {
		return model.Change{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	if !m.Table.Valid() {
		return model.Change{}, fmt.Errorf("%w: unknown table %q", ErrMalformed, m.Table)
	}
	ch := model.Change{Kind: m.Kind, Table: m.Table, CommittedAt: m.CommittedAt}
	var err error
	if ch.New, err = decodeEntity(m.Table, m.New); err != nil {
		return model.Change{}, err
	}
	if ch.Old, err = decodeEntity(m.Table, m.Old); err != nil {
		return model.Change{}, err
	}
	if ch.Subject() == nil {
		return model.Change{}, fmt.Errorf("%w: %s %s without payload", ErrMalformed, m.Kind, m.Table)
	}
	if m.Kind == model.KindDelete && ch.Old == nil {
		ch.Old, ch.New = ch.New, nil
	}
	return ch, nil
}

// Unmarshal parses a transport payload.
func Unmarshal(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func decodeEntity(t model.Table, raw json.RawMessage) (model.Entity, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var ent model.Entity
	switch t {
	case model.TableEvents:
		ev := &model.Event{}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, fmt.Errorf("%w: event: %v", ErrMalformed, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%w: event without id", ErrMalformed)
		}
		ent = ev.Normalize()
	case model.TableRsvps:
		r := &model.Rsvp{}
		if err := json.Unmarshal(raw, r); err != nil {
			return nil, fmt.Errorf("%w: rsvp: %v", ErrMalformed, err)
		}
		if r.EventID == "" || r.UserID == "" {
			return nil, fmt.Errorf("%w: rsvp without event_id or user_id", ErrMalformed)
		}
		ent = r
	case model.TableComments:
		c := &model.Comment{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("%w: comment: %v", ErrMalformed, err)
		}
		if c.ID == "" || c.EventID == "" {
			return nil, fmt.Errorf("%w: comment without id or event_id", ErrMalformed)
		}
		ent = c.Normalize()
	}
	return ent, nil
}

func eventIDOf(e model.Entity) string {
	switch v := e.(type) {
	case *model.Event:
		return v.ID
	case *model.Rsvp:
		return v.EventID
	case *model.Comment:
		return v.EventID
	}
	return ""
}
