package repository

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/community-events/internal/model"
)

const selectComments = `SELECT c.id, c.event_id, c.user_id, COALESCE(u.name, '') AS author_name,
       c.content, c.created_at
FROM comments c
LEFT JOIN users u ON u.id = c.user_id`

// CommentRepo provides access to the comments table.
type CommentRepo struct {
	db *sqlx.DB
}

func NewCommentRepo(db *sqlx.DB) *CommentRepo { return &CommentRepo{db: db} }

// ListByEvent returns the comments of one event, newest first.
func (r *CommentRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Comment, error) {
	out := []model.Comment{}
	if err := r.db.SelectContext(ctx, &out,
		selectComments+` WHERE c.event_id = ? ORDER BY c.created_at DESC, c.id DESC`, eventID); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// Insert stores a comment and returns it as read back, with its id,
// timestamp and author name.
func (r *CommentRepo) Insert(ctx context.Context, eventID, userID, body string) (model.Comment, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (event_id, user_id, content) VALUES (?, ?, ?)`, eventID, userID, body)
	if err != nil {
		return model.Comment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Comment{}, err
	}
	var c model.Comment
	if err := r.db.GetContext(ctx, &c, selectComments+` WHERE c.id = ?`, strconv.FormatInt(id, 10)); err != nil {
		return model.Comment{}, err
	}
	return *c.Normalize(), nil
}
