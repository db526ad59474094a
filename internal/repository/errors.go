// Package repository reads and writes the community events tables.
package repository

import "errors"

// ErrEventNotFound is returned when an event id has no row.  Handlers
// translate it into a 404.
var ErrEventNotFound = errors.New("event not found")
