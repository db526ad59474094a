package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/community-events/internal/model"
)

// UserRepo reads the users table.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID fetches a user by id.  It returns sql.ErrNoRows when missing.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, email, name, image, created_at FROM users WHERE id = ? LIMIT 1`, id)
	return u, err
}

// DisplayName returns the user's name, or "Anonymous" for unknown users.
func (r *UserRepo) DisplayName(ctx context.Context, id string) (string, error) {
	if id == "" {
		return model.AnonymousName, nil
	}
	u, err := r.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnonymousName, nil
	}
	if err != nil {
		return "", err
	}
	return u.DisplayName(), nil
}
