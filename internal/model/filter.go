package model

import (
	"fmt"
	"strings"
	"time"
)

// When limits a search to one side of today.
type When string

const (
	WhenAny      When = ""
	WhenUpcoming When = "upcoming" // on or after the start of today
	WhenPast     When = "past"     // before the start of today
)

// ParseWhen accepts "", "any", "upcoming" and "past", in any case.
func ParseWhen(s string) (When, error) {
	switch w := When(strings.ToLower(strings.TrimSpace(s))); w {
	case WhenAny, "any":
		return WhenAny, nil
	case WhenUpcoming, WhenPast:
		return w, nil
	}
	return WhenAny, fmt.Errorf("unknown date filter %q", s)
}

// EventFilter narrows an event listing.  The zero value matches every
// event.
type EventFilter struct {
	Text     string // case-insensitive substring of the title or description
	Category string // one category tag, case and spaces ignored
	When     When
}

// StartOfDay is midnight UTC of t's day, the boundary between past and
// upcoming events.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CategoryKey is the form tags are compared in.
func CategoryKey(tag string) string {
	return strings.ToLower(strings.ReplaceAll(tag, " ", ""))
}

// Match reports whether ev passes f on the day of now.
func (f EventFilter) Match(ev *Event, now time.Time) bool {
	if text := strings.ToLower(f.Text); text != "" &&
		!strings.Contains(strings.ToLower(ev.Title), text) &&
		!strings.Contains(strings.ToLower(ev.Description), text) {
		return false
	}
	if f.Category != "" && !ev.hasCategory(CategoryKey(f.Category)) {
		return false
	}
	switch f.When {
	case WhenUpcoming:
		return !ev.Date.Before(StartOfDay(now))
	case WhenPast:
		return ev.Date.Before(StartOfDay(now))
	}
	return true
}

func (e *Event) hasCategory(key string) bool {
	for _, c := range e.Categories {
		if CategoryKey(c) == key {
			return true
		}
	}
	return false
}
