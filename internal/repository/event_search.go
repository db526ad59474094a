package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/community-events/internal/model"
)

// EventSearchQuery defines filters & pagination for searching events.
type EventSearchQuery struct {
	model.EventFilter
	Page     int
	PageSize int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

// searchCond turns the filter into a WHERE clause over events aliased e.
// Category tags are matched whole against the comma-separated column with
// spaces removed, the same comparison model.CategoryKey makes.
func searchCond(f model.EventFilter, now time.Time) (string, []any) {
	where := []string{}
	args := []any{}

	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" {
		where = append(where, "(LOWER(e.title) LIKE ? OR LOWER(COALESCE(e.description, '')) LIKE ?)")
		args = append(args, contains(text), contains(text))
	}
	if key := model.CategoryKey(strings.TrimSpace(f.Category)); key != "" {
		where = append(where, "CONCAT(',', LOWER(REPLACE(e.category, ' ', '')), ',') LIKE ?")
		args = append(args, contains(","+key+","))
	}
	switch f.When {
	case model.WhenUpcoming:
		where = append(where, "e.event_date >= ?")
		args = append(args, model.StartOfDay(now))
	case model.WhenPast:
		where = append(where, "e.event_date < ?")
		args = append(args, model.StartOfDay(now))
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

// Search returns one page of matching events ordered by date, without
// RSVPs, and the total number of matches.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	cond, args := searchCond(q.EventFilter, time.Now())

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM events e WHERE `+cond, args...); err != nil {
		return nil, 0, err
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	argsData := append(append([]any{}, args...), limit, offset)

	var rows []eventRow
	dataSQL := selectEvents + ` WHERE ` + cond + ` ORDER BY e.event_date ASC, e.id ASC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, dataSQL, argsData...); err != nil {
		return nil, 0, err
	}
	out := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, total, nil
}
