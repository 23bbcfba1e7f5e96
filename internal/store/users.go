package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"revizo/internal/models"
)

// CreateUser inserts a user row. Account management proper lives outside the
// pipeline; this exists for seeding and for tests.
func (q queries) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, created_at)
		VALUES (?, ?, ?, ?);
	`, user.ID, user.Email, user.DisplayName, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapConstraintErr(err))
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := q.q.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE id = ?;
	`, id).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select user %s: %w", id, err)
	}
	return user, nil
}
