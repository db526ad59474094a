// Package identity exposes who the current view session acts as.  The core
// only reads it; issuing sessions is somebody else's job.
package identity

// Provider supplies the current user id.  ok is false for anonymous
// sessions.
type Provider interface {
	CurrentUserID() (userID string, ok bool)
}

// Static is a fixed identity; the empty string is anonymous.
type Static string

func (s Static) CurrentUserID() (string, bool) { return string(s), s != "" }

// Anonymous never has a user.
var Anonymous Provider = Static("")
