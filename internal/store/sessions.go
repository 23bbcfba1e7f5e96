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

// ErrAlreadyCompleted guards the one-shot complete transition.
var ErrAlreadyCompleted = errors.New("session already completed")

// CreateSession persists a session with its ordered question-id list.
// questions_count always equals len(question_ids) at creation.
func (q queries) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	session.QuestionsCount = len(session.QuestionIDs)

	ids, err := encodeStrings(session.QuestionIDs)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, theme_id, kind, questions_count, question_ids,
		                      score, max_score, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, session.ID, session.UserID, session.ThemeID, string(session.Kind),
		session.QuestionsCount, ids, session.Score, session.MaxScore,
		session.StartedAt, session.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", mapConstraintErr(err))
	}
	return nil
}

func (q queries) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, user_id, theme_id, kind, questions_count, question_ids,
		       score, max_score, started_at, completed_at
		FROM sessions
		WHERE id = ?;
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select session %s: %w", id, err)
	}
	return session, nil
}

// CompleteSession performs the single InProgress → Completed transition. The
// completed_at IS NULL guard makes the score immutable once set; a second
// call returns ErrAlreadyCompleted.
func (q queries) CompleteSession(ctx context.Context, id string, score, maxScore int) (*models.Session, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE sessions
		SET score = ?, max_score = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL;
	`, score, maxScore, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("complete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing row from a finished one.
		session, getErr := q.GetSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if session.IsCompleted() {
			return nil, fmt.Errorf("session %s: %w", id, ErrAlreadyCompleted)
		}
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return q.GetSession(ctx, id)
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var kind, ids string
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.ThemeID,
		&kind,
		&session.QuestionsCount,
		&ids,
		&session.Score,
		&session.MaxScore,
		&session.StartedAt,
		&session.CompletedAt,
	); err != nil {
		return nil, err
	}
	session.Kind = models.SessionKind(kind)
	list, err := decodeStrings(ids)
	if err != nil {
		return nil, err
	}
	session.QuestionIDs = list
	return session, nil
}
