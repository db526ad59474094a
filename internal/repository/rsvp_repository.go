package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/community-events/internal/model"
)

// RsvpRepo provides access to the rsvps table.  The (event_id, user_id)
// primary key makes inserts and deletes idempotent.
type RsvpRepo struct {
	db *sqlx.DB
}

func NewRsvpRepo(db *sqlx.DB) *RsvpRepo { return &RsvpRepo{db: db} }

// ListByEvent returns the RSVPs of one event.
func (r *RsvpRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Rsvp, error) {
	out := []model.Rsvp{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT event_id, user_id FROM rsvps WHERE event_id = ? ORDER BY created_at, user_id`, eventID)
	return out, err
}

// ListAll returns every RSVP grouped by event id.
func (r *RsvpRepo) ListAll(ctx context.Context) (map[string][]model.Rsvp, error) {
	var rows []model.Rsvp
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT event_id, user_id FROM rsvps ORDER BY event_id, created_at, user_id`); err != nil {
		return nil, err
	}
	out := make(map[string][]model.Rsvp)
	for _, row := range rows {
		out[row.EventID] = append(out[row.EventID], row)
	}
	return out, nil
}

// Insert adds an RSVP.  It reports false when the RSVP already existed.
func (r *RsvpRepo) Insert(ctx context.Context, eventID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO rsvps (event_id, user_id) VALUES (?, ?)`, eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes an RSVP.  It reports false when there was nothing to remove.
func (r *RsvpRepo) Delete(ctx context.Context, eventID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rsvps WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
