package model

import "time"

// User is a row of the `users` table.  Only the display name matters to
// the realtime views; the profile fields are carried for the listing API.
//
// Fields:
//
//	ID        – users.id.
//	Email     – users.email, the identity the session provider signs in with.
//	Name      – display name shown next to events and comments.
//	Image     – avatar URL.
//	CreatedAt – users.created_at.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Image     string    `json:"image" db:"image"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName returns Name or "Anonymous".
func (u User) DisplayName() string {
	if u.Name == "" {
		return AnonymousName
	}
	return u.Name
}
