package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revizo/internal/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain json",
			content: `{"theme_name": "Flask"}`,
			want:    `{"theme_name": "Flask"}`,
		},
		{
			name:    "fenced json block",
			content: "```json\n{\"theme_name\": \"Flask\"}\n```",
			want:    `{"theme_name": "Flask"}`,
		},
		{
			name:    "fence without language tag",
			content: "```\n{\"a\": 1}\n```",
			want:    `{"a": 1}`,
		},
		{
			name:    "prose around the object",
			content: "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want:    `{"a": 1}`,
		},
		{
			name:    "unterminated fence",
			content: "```json\n{\"a\": 1}",
			want:    `{"a": 1}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.content))
		})
	}
}

func TestClampSample(t *testing.T) {
	assert.Equal(t, "short", clampSample("short", 100))
	assert.Equal(t, "abc", clampSample("abcdef", 3))
	// Rune-based, so multibyte text is never cut mid-character.
	assert.Equal(t, "éé", clampSample("ééé", 2))
}

func TestBuildQuestionQuiz(t *testing.T) {
	valid := GeneratedQuestion{
		Question: "Which HTTP method is idempotent?",
		Answers: []GeneratedAnswer{
			{Text: "PUT", IsCorrect: true},
			{Text: "POST"},
			{Text: "PATCH"},
			{Text: "CONNECT"},
		},
		Explanation: "PUT replaces the full resource.",
		Difficulty:  "HARD",
	}

	question, err := buildQuestion(valid, models.KindQuiz)
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyHard, question.Difficulty)
	assert.True(t, question.Explanation.Valid)
	require.Len(t, question.Answers, 4)
	assert.Equal(t, 2, question.Answers[2].Position)

	t.Run("rejects wrong answer count", func(t *testing.T) {
		item := valid
		item.Answers = item.Answers[:3]
		_, err := buildQuestion(item, models.KindQuiz)
		var merr *MalformedGenerationError
		require.ErrorAs(t, err, &merr)
		assert.Contains(t, merr.Reason, "3 answers")
	})

	t.Run("rejects multiple correct answers", func(t *testing.T) {
		item := valid
		item.Answers = append([]GeneratedAnswer{}, valid.Answers...)
		item.Answers[1].IsCorrect = true
		_, err := buildQuestion(item, models.KindQuiz)
		var merr *MalformedGenerationError
		require.ErrorAs(t, err, &merr)
		assert.Contains(t, merr.Reason, "2 correct")
	})

	t.Run("rejects zero correct answers", func(t *testing.T) {
		item := valid
		item.Answers = append([]GeneratedAnswer{}, valid.Answers...)
		item.Answers[0].IsCorrect = false
		_, err := buildQuestion(item, models.KindQuiz)
		var merr *MalformedGenerationError
		assert.ErrorAs(t, err, &merr)
	})

	t.Run("rejects blank question text", func(t *testing.T) {
		item := valid
		item.Question = "   "
		_, err := buildQuestion(item, models.KindQuiz)
		var merr *MalformedGenerationError
		assert.ErrorAs(t, err, &merr)
	})

	t.Run("rejects blank answer text", func(t *testing.T) {
		item := valid
		item.Answers = append([]GeneratedAnswer{}, valid.Answers...)
		item.Answers[3].Text = " "
		_, err := buildQuestion(item, models.KindQuiz)
		var merr *MalformedGenerationError
		assert.ErrorAs(t, err, &merr)
	})
}

func TestBuildQuestionFlashcard(t *testing.T) {
	question, err := buildQuestion(GeneratedQuestion{
		Question: "What is WSGI?",
		Answer:   "The Python web server gateway interface.",
	}, models.KindFlashcard)
	require.NoError(t, err)
	require.Len(t, question.Answers, 1)
	assert.True(t, question.Answers[0].IsCorrect)
	assert.Equal(t, models.DifficultyMedium, question.Difficulty)
	assert.False(t, question.Explanation.Valid)

	t.Run("falls back to single answers entry", func(t *testing.T) {
		question, err := buildQuestion(GeneratedQuestion{
			Question: "What is WSGI?",
			Answers:  []GeneratedAnswer{{Text: "A gateway interface.", IsCorrect: true}},
		}, models.KindFlashcard)
		require.NoError(t, err)
		require.Len(t, question.Answers, 1)
		assert.Equal(t, "A gateway interface.", question.Answers[0].AnswerText)
	})

	t.Run("rejects missing answer", func(t *testing.T) {
		_, err := buildQuestion(GeneratedQuestion{Question: "What is WSGI?"}, models.KindFlashcard)
		var merr *MalformedGenerationError
		require.ErrorAs(t, err, &merr)
		assert.True(t, strings.Contains(merr.Reason, "no answer"))
	})
}

func TestGenerateQuestionsUnavailableWithoutKey(t *testing.T) {
	svc := NewAIService("", "gpt-4o-mini", "", nil)
	_, err := svc.GenerateQuestions(t.Context(), "text", models.KindQuiz, 2)
	assert.ErrorIs(t, err, ErrAIUnavailable)

	_, err = svc.AnalyzeTheme(t.Context(), "text")
	assert.ErrorIs(t, err, ErrAIUnavailable)
}
