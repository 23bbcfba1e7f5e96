package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionKind(t *testing.T) {
	for raw, want := range map[string]SessionKind{
		"quiz":      KindQuiz,
		"QUIZ":      KindQuiz,
		" quizz ":   KindQuiz,
		"flashcard": KindFlashcard,
		"Flashcard": KindFlashcard,
	} {
		got, err := ParseSessionKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseSessionKind("essay")
	assert.Error(t, err)
	_, err = ParseSessionKind("")
	assert.Error(t, err)
}

func TestParseDifficulty(t *testing.T) {
	assert.Equal(t, DifficultyEasy, ParseDifficulty("EASY"))
	assert.Equal(t, DifficultyHard, ParseDifficulty(" hard "))
	assert.Equal(t, DifficultyMedium, ParseDifficulty("medium"))
	assert.Equal(t, DifficultyMedium, ParseDifficulty(""))
	assert.Equal(t, DifficultyMedium, ParseDifficulty("impossible"))
}

func TestQuestionSuccessRate(t *testing.T) {
	q := Question{TimesUsed: 4, TimesCorrect: 3}
	assert.InDelta(t, 75.0, q.SuccessRate(), 1e-9)
	assert.Zero(t, (&Question{}).SuccessRate())
}

func TestSessionSuccessRate(t *testing.T) {
	session := Session{
		Score:       sql.NullInt64{Int64: 8, Valid: true},
		MaxScore:    sql.NullInt64{Int64: 10, Valid: true},
		CompletedAt: sql.NullTime{Time: time.Now(), Valid: true},
	}
	assert.True(t, session.IsCompleted())
	assert.InDelta(t, 80.0, session.SuccessRate(), 1e-9)

	t.Run("undefined before completion", func(t *testing.T) {
		open := Session{Score: sql.NullInt64{Int64: 8, Valid: true}}
		assert.False(t, open.IsCompleted())
		assert.Zero(t, open.SuccessRate())
	})

	t.Run("undefined for zero max score", func(t *testing.T) {
		s := session
		s.MaxScore = sql.NullInt64{Int64: 0, Valid: true}
		assert.Zero(t, s.SuccessRate())
	})
}
