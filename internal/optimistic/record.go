package optimistic

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/community-events/internal/model"
)

// Kind is the user action an optimistic record stands for.
type Kind string

const (
	KindAddRsvp    Kind = "add_rsvp"
	KindRemoveRsvp Kind = "remove_rsvp"
	KindAddComment Kind = "add_comment"
)

// Status is where a record is in its lifecycle:
// pending -> confirmed | rejected.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Record is the coordinator's bookkeeping for one in-flight mutation.  It
// never holds entity state of its own; the store does.
//
// Fields:
//
//	ID        – provisional identity, assigned when the user acts.
//	Kind      – action the record stands for.
//	EventID   – event being changed.
//	UserID    – acting user.
//	Body      – comment text, add_comment only.
//	Status    – pending, confirmed or rejected.
//	Echoed    – a matching change-feed notification arrived while pending.
//	CommentID – authoritative comment id once the write returned.
//	CreatedAt – when the user acted.
type Record struct {
	ID        ulid.ULID `json:"id"`
	Kind      Kind      `json:"kind"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body,omitempty"`
	Status    Status    `json:"status"`
	Echoed    bool      `json:"echoed"`
	CommentID string    `json:"comment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// base is the event as it was before the optimistic change, nil when
	// the store did not hold it.  Rollback returns to it.
	base *model.Event
}

func newRecord(kind Kind, eventID, userID, body string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Kind:      kind,
		EventID:   eventID,
		UserID:    userID,
		Body:      body,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// matches reports whether ch is the change-feed echo of r.
func (r *Record) matches(ch model.Change) bool {
	if r.Status != StatusPending || r.Echoed {
		return false
	}
	switch subj := ch.Subject().(type) {
	case *model.Rsvp:
		if subj.EventID != r.EventID || subj.UserID != r.UserID {
			return false
		}
		switch ch.Kind {
		case model.KindInsert:
			return r.Kind == KindAddRsvp
		case model.KindDelete:
			return r.Kind == KindRemoveRsvp
		}
	case *model.Comment:
		return ch.Kind == model.KindInsert && r.Kind == KindAddComment &&
			subj.EventID == r.EventID && subj.UserID == r.UserID && subj.Body == r.Body
	}
	return false
}
