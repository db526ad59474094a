package model

import "time"

// Kind is the operation a change-feed notification reports.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Table names a monitored collection.
type Table string

const (
	TableEvents   Table = "events"
	TableRsvps    Table = "rsvps"
	TableComments Table = "comments"
)

func (t Table) Valid() bool {
	switch t {
	case TableEvents, TableRsvps, TableComments:
		return true
	}
	return false
}

// Entity is implemented by *Event, *Rsvp and *Comment.
type Entity interface {
	Table() Table
}

// Change is a normalized change-feed notification.  New is set for inserts
// and updates, Old for deletes and, when the source provides it, updates.
// Either may carry only a partial entity.
type Change struct {
	Kind        Kind
	Table       Table
	New         Entity
	Old         Entity
	CommittedAt time.Time
}

// Subject returns New when present, otherwise Old.
func (c Change) Subject() Entity {
	if c.New != nil {
		return c.New
	}
	return c.Old
}
