package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"revizo/internal/models"
)

// CreateQuestion inserts a question together with its answer rows. Answer
// shape validation (exactly 4 with one correct for quiz, exactly one correct
// for flashcard) happens upstream in the assembly service; the store only
// guarantees the rows land atomically with the surrounding transaction.
func (q queries) CreateQuestion(ctx context.Context, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if question.Source == "" {
		question.Source = models.SourceAIGenerated
	}
	now := time.Now().UTC()
	question.CreatedAt = now
	question.UpdatedAt = now

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO questions (id, theme_id, kind, question_text, difficulty, explanation, source,
		                       times_used, times_correct, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, question.ID, question.ThemeID, string(question.Kind), question.QuestionText,
		string(question.Difficulty), question.Explanation, question.Source,
		question.TimesUsed, question.TimesCorrect, question.CreatedAt, question.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", mapConstraintErr(err))
	}

	for i := range question.Answers {
		ans := &question.Answers[i]
		if ans.ID == "" {
			ans.ID = uuid.NewString()
		}
		ans.QuestionID = question.ID
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO answers (id, question_id, answer_text, is_correct, position)
			VALUES (?, ?, ?, ?, ?);
		`, ans.ID, ans.QuestionID, ans.AnswerText, ans.IsCorrect, ans.Position); err != nil {
			return fmt.Errorf("insert answer %d: %w", i, err)
		}
	}
	return nil
}

func (q queries) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, theme_id, kind, question_text, difficulty, explanation, source,
		       times_used, times_correct, created_at, updated_at
		FROM questions
		WHERE id = ?;
	`, id)
	question, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select question %s: %w", id, err)
	}

	answers, err := q.ListAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	question.Answers = answers
	return question, nil
}

// ListQuestionsByTheme returns a theme's questions of one kind in creation
// order, without their answers (the matcher only needs the question text).
func (q queries) ListQuestionsByTheme(ctx context.Context, themeID string, kind models.SessionKind) ([]models.Question, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, theme_id, kind, question_text, difficulty, explanation, source,
		       times_used, times_correct, created_at, updated_at
		FROM questions
		WHERE theme_id = ? AND kind = ?
		ORDER BY created_at ASC, id ASC;
	`, themeID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query theme questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (q queries) ListAnswers(ctx context.Context, questionID string) ([]models.Answer, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, question_id, answer_text, is_correct, position
		FROM answers
		WHERE question_id = ?
		ORDER BY position ASC;
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		var ans models.Answer
		if err := rows.Scan(&ans.ID, &ans.QuestionID, &ans.AnswerText, &ans.IsCorrect, &ans.Position); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, ans)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

// IncrementQuestionUsage bumps times_used for every listed question, done
// once when a session over them completes.
func (q queries) IncrementQuestionUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := q.q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE questions
		SET times_used = times_used + 1, updated_at = ?
		WHERE id IN (%s);
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("increment question usage: %w", err)
	}
	return nil
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	question := &models.Question{}
	var kind, difficulty string
	if err := row.Scan(
		&question.ID,
		&question.ThemeID,
		&kind,
		&question.QuestionText,
		&difficulty,
		&question.Explanation,
		&question.Source,
		&question.TimesUsed,
		&question.TimesCorrect,
		&question.CreatedAt,
		&question.UpdatedAt,
	); err != nil {
		return nil, err
	}
	question.Kind = models.SessionKind(kind)
	question.Difficulty = models.Difficulty(difficulty)
	return question, nil
}
