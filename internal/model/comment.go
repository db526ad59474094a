package model

import (
	"sort"
	"time"
)

// Comment is a message posted on an event.  Comments are immutable once
// created and are displayed newest first.
//
// Fields:
//
//	ID         – comments.id, assigned by the durable store.
//	EventID    – event the comment belongs to.
//	UserID     – author.
//	AuthorName – users.name of the author, "Anonymous" when unknown.
//	Body       – comments.content.
//	CreatedAt  – comments.created_at.
type Comment struct {
	ID         string    `json:"id" db:"id"`
	EventID    string    `json:"event_id" db:"event_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	AuthorName string    `json:"author_name" db:"author_name"`
	Body       string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (*Comment) Table() Table { return TableComments }

// Normalize applies display defaults and returns the receiver.
func (c *Comment) Normalize() *Comment {
	if c.AuthorName == "" {
		c.AuthorName = AnonymousName
	}
	return c
}

// SortComments orders comments newest first.  Comments created in the same
// instant are ordered by id, higher first.
func SortComments(cs []Comment) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return cs[i].ID > cs[j].ID
	})
}
