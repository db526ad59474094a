package model

// Rsvp records that a user is attending an event.  The (EventID, UserID)
// pair is the identity; existence is the only state.
type Rsvp struct {
	EventID string `json:"event_id" db:"event_id"`
	UserID  string `json:"user_id" db:"user_id"`
}

func (*Rsvp) Table() Table { return TableRsvps }

// RsvpKey is the composite identity of an Rsvp.
type RsvpKey struct {
	EventID string
	UserID  string
}

func (r Rsvp) Key() RsvpKey { return RsvpKey{EventID: r.EventID, UserID: r.UserID} }
