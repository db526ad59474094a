package model

import (
	"sort"
	"strings"
	"time"
)

// AnonymousName is displayed when a creator or author has no name on record.
const AnonymousName = "Anonymous"

// Event is a community event as the views render it.  The RSVP set and
// the comment list travel with the event so a render never has to join
// anything.
//
// Fields:
//
//	ID          – opaque unique identifier (events.id).
//	Title       – events.title.
//	Description – events.description.
//	Date        – when the event takes place (events.event_date).
//	Location    – events.location.
//	Categories  – category tags; stored as a comma separated string.
//	CreatedBy   – user id of the creator (events.created_by).
//	CreatorName – display name of the creator, "Anonymous" when unknown.
//	CreatedAt   – events.created_at.
//	Rsvps       – at most one record per user.
//	Comments    – newest first; only populated on the detail view.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"event_date"`
	Location    string    `json:"location"`
	Categories  []string  `json:"categories"`
	CreatedBy   string    `json:"created_by"`
	CreatorName string    `json:"creator_name"`
	CreatedAt   time.Time `json:"created_at"`
	Rsvps       []Rsvp    `json:"rsvps"`
	Comments    []Comment `json:"comments"`
}

func (*Event) Table() Table { return TableEvents }

// Normalize fills optional fields with their defaults so downstream code
// never has to check for absent collections.  It collapses duplicate RSVPs
// and orders comments newest first.  It returns the receiver.
func (e *Event) Normalize() *Event {
	if e.Categories == nil {
		e.Categories = []string{}
	}
	if e.CreatorName == "" {
		e.CreatorName = AnonymousName
	}
	rsvps := make([]Rsvp, 0, len(e.Rsvps))
	seen := make(map[string]struct{}, len(e.Rsvps))
	for _, r := range e.Rsvps {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		r.EventID = e.ID
		rsvps = append(rsvps, r)
	}
	e.Rsvps = rsvps
	comments := make([]Comment, 0, len(e.Comments))
	for _, c := range e.Comments {
		comments = append(comments, *c.Normalize())
	}
	SortComments(comments)
	e.Comments = comments
	return e
}

// HasRsvp reports whether userID is attending.
func (e *Event) HasRsvp(userID string) bool {
	for _, r := range e.Rsvps {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// HasComment reports whether a comment with the given id is present.
func (e *Event) HasComment(id string) bool {
	for _, c := range e.Comments {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	out := *e
	out.Categories = append([]string{}, e.Categories...)
	out.Rsvps = append([]Rsvp{}, e.Rsvps...)
	out.Comments = append([]Comment{}, e.Comments...)
	return &out
}

// ParseCategories splits the stored comma separated category column.
func ParseCategories(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCategories is the inverse of ParseCategories.
func JoinCategories(cats []string) string { return strings.Join(cats, ", ") }

// SortEvents orders events by date, earliest first, falling back to id.
func SortEvents(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].Date.Equal(evs[j].Date) {
			return evs[i].Date.Before(evs[j].Date)
		}
		return evs[i].ID < evs[j].ID
	})
}
