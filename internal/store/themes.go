package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"revizo/internal/models"
	"revizo/internal/similarity"
)

// CreateTheme persists a theme. Keywords are normalized (lowercase, trimmed,
// deduplicated) and must be non-empty; (user_id, name) uniqueness violations
// surface as ErrConflict.
func (q queries) CreateTheme(ctx context.Context, theme *models.Theme) error {
	theme.Keywords = similarity.NormalizeKeywords(theme.Keywords)
	if len(theme.Keywords) == 0 {
		return errors.New("theme keywords must not be empty")
	}
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	theme.CreatedAt = now
	theme.UpdatedAt = now

	keywords, err := encodeStrings(theme.Keywords)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO themes (id, user_id, name, description, keywords, questions_count, times_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, theme.ID, theme.UserID, theme.Name, theme.Description, keywords,
		theme.QuestionsCount, theme.TimesUsed, theme.CreatedAt, theme.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert theme %s: %w", theme.Name, mapConstraintErr(err))
	}
	return nil
}

func (q queries) GetTheme(ctx context.Context, id string) (*models.Theme, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, keywords, questions_count, times_used, created_at, updated_at
		FROM themes
		WHERE id = ?;
	`, id)
	theme, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("theme %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select theme %s: %w", id, err)
	}
	return theme, nil
}

// ListThemesByUser returns the user's themes in creation order. The matcher
// relies on this ordering being stable for its first-wins tie-break.
func (q queries) ListThemesByUser(ctx context.Context, userID string) ([]models.Theme, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, user_id, name, description, keywords, questions_count, times_used, created_at, updated_at
		FROM themes
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	var out []models.Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		out = append(out, *theme)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}
	return out, nil
}

// TouchThemeUsage increments times_used and merges the new document's
// keywords into the theme's keyword set. Called when a matched theme is
// reused instead of created.
func (q queries) TouchThemeUsage(ctx context.Context, id string, newKeywords []string) error {
	theme, err := q.GetTheme(ctx, id)
	if err != nil {
		return err
	}

	merged := similarity.NormalizeKeywords(append(theme.Keywords, newKeywords...))
	keywords, err := encodeStrings(merged)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		UPDATE themes
		SET times_used = times_used + 1, keywords = ?, updated_at = ?
		WHERE id = ?;
	`, keywords, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch theme %s: %w", id, err)
	}
	return nil
}

// AddThemeQuestions bumps questions_count after new questions are persisted.
func (q queries) AddThemeQuestions(ctx context.Context, id string, delta int) error {
	if delta == 0 {
		return nil
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE themes
		SET questions_count = questions_count + ?, updated_at = ?
		WHERE id = ?;
	`, delta, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update theme question count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("theme %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTheme(row rowScanner) (*models.Theme, error) {
	theme := &models.Theme{}
	var keywords string
	if err := row.Scan(
		&theme.ID,
		&theme.UserID,
		&theme.Name,
		&theme.Description,
		&keywords,
		&theme.QuestionsCount,
		&theme.TimesUsed,
		&theme.CreatedAt,
		&theme.UpdatedAt,
	); err != nil {
		return nil, err
	}
	list, err := decodeStrings(keywords)
	if err != nil {
		return nil, err
	}
	theme.Keywords = list
	return theme, nil
}
