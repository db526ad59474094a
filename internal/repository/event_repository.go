package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/community-events/internal/model"
)

// eventRow mirrors one row of the listing query: an event joined with the
// creator's name.
type eventRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	EventDate   time.Time      `db:"event_date"`
	Location    string         `db:"location"`
	Category    string         `db:"category"`
	CreatedBy   sql.NullString `db:"created_by"`
	CreatorName sql.NullString `db:"creator_name"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r eventRow) toModel() model.Event {
	ev := model.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		Date:        r.EventDate,
		Location:    r.Location,
		Categories:  model.ParseCategories(r.Category),
		CreatedBy:   r.CreatedBy.String,
		CreatorName: r.CreatorName.String,
		CreatedAt:   r.CreatedAt,
	}
	return *ev.Normalize()
}

const selectEvents = `SELECT e.id, e.title, e.description, e.event_date, e.location, e.category,
       e.created_by, u.name AS creator_name, e.created_at
FROM events e
LEFT JOIN users u ON u.id = e.created_by`

// EventRepo provides read access to the events table.
type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

// List returns all events ordered by date, without RSVPs.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, selectEvents+` ORDER BY e.event_date ASC, e.id ASC`); err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// GetByID returns one event or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id string) (model.Event, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, selectEvents+` WHERE e.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	return row.toModel(), nil
}
