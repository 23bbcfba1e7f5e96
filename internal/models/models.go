package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SessionKind discriminates between multiple-choice quiz sessions and
// front/back flashcard sessions. Questions carry the same discriminator.
type SessionKind string

const (
	KindQuiz      SessionKind = "quiz"
	KindFlashcard SessionKind = "flashcard"
)

// ParseSessionKind normalizes user input ("QUIZ", "quiz", "Flashcard", ...)
// into a SessionKind. Unknown values return an error.
func ParseSessionKind(raw string) (SessionKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "quiz", "quizz":
		return KindQuiz, nil
	case "flashcard":
		return KindFlashcard, nil
	default:
		return "", fmt.Errorf("unknown session kind %q", raw)
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps generator output (usually upper-case) to a Difficulty,
// defaulting to medium for empty or unrecognized values.
func ParseDifficulty(raw string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Theme groups questions under a subject inferred from document content.
// Keywords are stored lowercase and trimmed; the set is never empty once
// the theme is persisted. (user_id, name) is unique per owner.
type Theme struct {
	ID             string
	UserID         string
	Name           string
	Description    sql.NullString
	Keywords       []string
	QuestionsCount int
	TimesUsed      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	// SourceAIGenerated marks questions persisted from generator output.
	SourceAIGenerated = "ai_generated"
	// SourceUserCreated marks questions authored outside the pipeline.
	SourceUserCreated = "user_created"
)

type Question struct {
	ID           string
	ThemeID      string
	Kind         SessionKind
	QuestionText string
	Difficulty   Difficulty
	Explanation  sql.NullString
	Source       string
	TimesUsed    int
	TimesCorrect int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Answers []Answer
}

// SuccessRate returns how often the question was answered correctly, as a
// percentage. Zero when the question was never used.
func (q *Question) SuccessRate() float64 {
	if q.TimesUsed == 0 {
		return 0
	}
	return float64(q.TimesCorrect) / float64(q.TimesUsed) * 100
}

type Answer struct {
	ID         string
	QuestionID string
	AnswerText string
	IsCorrect  bool
	Position   int
}

// Session is one study run over an ordered question list. Score fields stay
// NULL until the single complete transition; after that the row is immutable.
type Session struct {
	ID             string
	UserID         string
	ThemeID        sql.NullString
	Kind           SessionKind
	QuestionsCount int
	QuestionIDs    []string
	Score          sql.NullInt64
	MaxScore       sql.NullInt64
	StartedAt      time.Time
	CompletedAt    sql.NullTime
}

func (s *Session) IsCompleted() bool {
	return s.CompletedAt.Valid
}

// SuccessRate is score/max_score as a percentage, defined only for completed
// sessions with a positive max score.
func (s *Session) SuccessRate() float64 {
	if !s.CompletedAt.Valid || !s.MaxScore.Valid || s.MaxScore.Int64 == 0 {
		return 0
	}
	return float64(s.Score.Int64) / float64(s.MaxScore.Int64) * 100
}
