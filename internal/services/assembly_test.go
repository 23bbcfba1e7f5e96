package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"revizo/internal/db"
	"revizo/internal/models"
	"revizo/internal/services"
	"revizo/internal/store"
)

const sourceText = "python flask routing blueprints request handling templates deployment"

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) ExtractText([]byte) (string, error) {
	return s.text, s.err
}

type stubAnalyzer struct {
	summary *services.ThemeSummary
	err     error
}

func (s stubAnalyzer) AnalyzeTheme(context.Context, string) (*services.ThemeSummary, error) {
	return s.summary, s.err
}

// stubGenerator replays canned batches, one per call, and records the counts
// it was asked for.
type stubGenerator struct {
	batches   [][]services.GeneratedQuestion
	requested []int
	err       error
}

func (g *stubGenerator) GenerateQuestions(_ context.Context, _ string, _ models.SessionKind, count int) ([]services.GeneratedQuestion, error) {
	g.requested = append(g.requested, count)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.batches) == 0 {
		return nil, nil
	}
	batch := g.batches[0]
	g.batches = g.batches[1:]
	return batch, nil
}

func flaskSummary() *services.ThemeSummary {
	return &services.ThemeSummary{
		Name:        "Flask Web Development",
		Keywords:    []string{"python", "flask", "web"},
		Description: "Building web backends with Flask.",
	}
}

func quizItem(text string) services.GeneratedQuestion {
	return services.GeneratedQuestion{
		Question: text,
		Answers: []services.GeneratedAnswer{
			{Text: "the right one", IsCorrect: true},
			{Text: "a wrong one"},
			{Text: "another wrong one"},
			{Text: "a third wrong one"},
		},
		Explanation: "because it is",
		Difficulty:  "MEDIUM",
	}
}

func quizItems(n int) []services.GeneratedQuestion {
	items := make([]services.GeneratedQuestion, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, quizItem("What does a Flask route decorator bind? variant "+string(rune('a'+i))))
	}
	return items
}

type fixture struct {
	svc  *services.AssemblyService
	st   *store.Store
	gen  *stubGenerator
	user *models.User
}

func newFixture(t *testing.T, gen *stubGenerator) *fixture {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	st := store.New(conn)

	user := &models.User{Email: "student@example.com"}
	require.NoError(t, st.CreateUser(context.Background(), user))

	svc := services.NewAssemblyService(
		st,
		stubExtractor{text: sourceText},
		stubAnalyzer{summary: flaskSummary()},
		gen,
		zap.NewNop(),
	)
	return &fixture{svc: svc, st: st, gen: gen, user: user}
}

func TestCreateSessionFromPDFValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	ctx := context.Background()

	var verr *services.ValidationError

	_, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, nil, models.SessionKind("essay"), 5)
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateSessionFromPDF(ctx, f.user.ID, nil, models.KindQuiz, 0)
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateSessionFromPDF(ctx, f.user.ID, nil, models.KindQuiz, services.MaxQuestionCount+1)
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateSessionFromPDF(ctx, "nobody", nil, models.KindQuiz, 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateSessionFromPDFExtractionFailure(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	f.svc = services.NewAssemblyService(
		f.st,
		stubExtractor{err: &services.ExtractionError{Err: errors.New("no text layer")}},
		stubAnalyzer{summary: flaskSummary()},
		f.gen,
		zap.NewNop(),
	)

	_, err := f.svc.CreateSessionFromPDF(context.Background(), f.user.ID, nil, models.KindQuiz, 5)
	var xerr *services.ExtractionError
	assert.ErrorAs(t, err, &xerr)
	assert.Empty(t, f.gen.requested)
}

func TestCreateSessionFromPDFNewTheme(t *testing.T) {
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{quizItems(3)}}
	f := newFixture(t, gen)
	ctx := context.Background()

	result, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindQuiz, 3)
	require.NoError(t, err)

	assert.False(t, result.ThemeWasExisting)
	assert.Zero(t, result.PooledCount)
	assert.Equal(t, 3, result.GeneratedCount)
	assert.Equal(t, []int{3}, gen.requested)

	theme, err := f.st.GetTheme(ctx, result.Theme.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flask Web Development", theme.Name)
	assert.Equal(t, []string{"python", "flask", "web"}, theme.Keywords)
	assert.Equal(t, 3, theme.QuestionsCount)

	session, err := f.st.GetSession(ctx, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KindQuiz, session.Kind)
	assert.Equal(t, 3, session.QuestionsCount)
	require.Len(t, session.QuestionIDs, 3)

	for _, id := range session.QuestionIDs {
		question, err := f.st.GetQuestion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, theme.ID, question.ThemeID)
		assert.Equal(t, models.SourceAIGenerated, question.Source)
		require.Len(t, question.Answers, 4)
	}
}

func TestCreateSessionFromPDFPoolsExisting(t *testing.T) {
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{quizItems(4)}}
	f := newFixture(t, gen)
	ctx := context.Background()

	theme := &models.Theme{UserID: f.user.ID, Name: "Flask", Keywords: []string{"python", "flask", "web"}}
	require.NoError(t, f.st.CreateTheme(ctx, theme))

	seeded := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		q := &models.Question{
			ThemeID:      theme.ID,
			Kind:         models.KindQuiz,
			QuestionText: sourceText,
			Difficulty:   models.DifficultyMedium,
			Answers: []models.Answer{
				{AnswerText: "yes", IsCorrect: true},
				{AnswerText: "no", Position: 1},
				{AnswerText: "maybe", Position: 2},
				{AnswerText: "never", Position: 3},
			},
		}
		require.NoError(t, f.st.CreateQuestion(ctx, q))
		seeded = append(seeded, q.ID)
	}
	require.NoError(t, f.st.AddThemeQuestions(ctx, theme.ID, 6))

	result, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindQuiz, 10)
	require.NoError(t, err)

	assert.True(t, result.ThemeWasExisting)
	assert.Equal(t, theme.ID, result.Theme.ID)
	assert.Equal(t, 6, result.PooledCount)
	assert.Equal(t, 4, result.GeneratedCount)
	// Only the shortfall is generated.
	assert.Equal(t, []int{4}, gen.requested)

	session, err := f.st.GetSession(ctx, result.Session.ID)
	require.NoError(t, err)
	require.Len(t, session.QuestionIDs, 10)
	// Pooled questions come first, then the generated ones.
	assert.ElementsMatch(t, seeded, session.QuestionIDs[:6])

	updated, err := f.st.GetTheme(ctx, theme.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TimesUsed)
	assert.Equal(t, 10, updated.QuestionsCount)
}

func TestCreateSessionFromPDFReplacesMalformed(t *testing.T) {
	malformed := quizItem("Which of these is a Flask blueprint?")
	malformed.Answers[1].IsCorrect = true // two correct answers

	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{
		{quizItem("What is WSGI?"), malformed},
		quizItems(1),
	}}
	f := newFixture(t, gen)

	result, err := f.svc.CreateSessionFromPDF(context.Background(), f.user.ID, []byte("%PDF-"), models.KindQuiz, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, result.GeneratedCount)
	assert.Equal(t, []int{2, 1}, gen.requested)
	assert.Len(t, result.Session.QuestionIDs, 2)
}

func TestCreateSessionFromPDFThemeNameConflict(t *testing.T) {
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{
		quizItems(2), quizItems(2),
	}}
	f := newFixture(t, gen)
	ctx := context.Background()

	// Same name as the analyzer summary but disjoint keywords: the matcher
	// never reuses it, so every create attempt hits the (user_id, name)
	// unique constraint.
	existing := &models.Theme{
		UserID:   f.user.ID,
		Name:     "Flask Web Development",
		Keywords: []string{"biology", "photosynthesis"},
	}
	require.NoError(t, f.st.CreateTheme(ctx, existing))

	_, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindQuiz, 2)
	require.ErrorIs(t, err, store.ErrConflict)
	// One full retry before the conflict surfaces.
	assert.Equal(t, []int{2, 2}, gen.requested)

	// Nothing committed: the seeded theme is untouched and alone.
	themes, err := f.st.ListThemesByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Equal(t, []string{"biology", "photosynthesis"}, themes[0].Keywords)
	assert.Zero(t, themes[0].QuestionsCount)
	assert.Zero(t, themes[0].TimesUsed)
}

func TestCreateSessionFromPDFShortSupplyFails(t *testing.T) {
	malformed := services.GeneratedQuestion{Question: "no answers at all"}
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{
		{malformed}, {malformed}, {malformed},
	}}
	f := newFixture(t, gen)
	ctx := context.Background()

	_, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindQuiz, 2)
	var gerr *services.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, []int{2, 2, 2}, gen.requested)

	// A failed run leaves nothing behind, not a short session.
	themes, err := f.st.ListThemesByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, themes)
}

func TestCreateSessionFromPDFFlashcards(t *testing.T) {
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{{
		{Question: "What is a Jinja template?", Answer: "A text file rendered with context variables.", Difficulty: "EASY"},
		// Some generations use the quiz answer shape for flashcards.
		{Question: "What does app.route do?", Answers: []services.GeneratedAnswer{{Text: "Registers a URL rule.", IsCorrect: true}}},
	}}}
	f := newFixture(t, gen)
	ctx := context.Background()

	result, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindFlashcard, 2)
	require.NoError(t, err)
	require.Len(t, result.Session.QuestionIDs, 2)

	for _, id := range result.Session.QuestionIDs {
		question, err := f.st.GetQuestion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.KindFlashcard, question.Kind)
		require.Len(t, question.Answers, 1)
		assert.True(t, question.Answers[0].IsCorrect)
	}
}

func TestResolveThemeIdempotent(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	ctx := context.Background()

	first, created, err := f.svc.ResolveTheme(ctx, f.user.ID, flaskSummary())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Zero(t, first.TimesUsed)

	second, created, err := f.svc.ResolveTheme(ctx, f.user.ID, flaskSummary())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.TimesUsed)
}

func TestResolveThemeValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{})

	_, _, err := f.svc.ResolveTheme(context.Background(), f.user.ID, &services.ThemeSummary{Name: "Empty"})
	var verr *services.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPoolExistingQuestions(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	ctx := context.Background()

	theme := &models.Theme{UserID: f.user.ID, Name: "Flask", Keywords: []string{"python", "flask"}}
	require.NoError(t, f.st.CreateTheme(ctx, theme))

	relevant := &models.Question{
		ThemeID: theme.ID, Kind: models.KindQuiz, QuestionText: sourceText,
		Difficulty: models.DifficultyMedium,
		Answers:    []models.Answer{{AnswerText: "yes", IsCorrect: true}},
	}
	offTopic := &models.Question{
		ThemeID: theme.ID, Kind: models.KindQuiz,
		QuestionText: "photosynthesis converts light into chemical energy",
		Difficulty:   models.DifficultyMedium,
		Answers:      []models.Answer{{AnswerText: "yes", IsCorrect: true}},
	}
	require.NoError(t, f.st.CreateQuestion(ctx, relevant))
	require.NoError(t, f.st.CreateQuestion(ctx, offTopic))

	ids, err := f.svc.PoolExistingQuestions(ctx, theme.ID, sourceText, models.KindQuiz, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{relevant.ID}, ids)

	_, err = f.svc.PoolExistingQuestions(ctx, "missing", sourceText, models.KindQuiz, 10)
	assert.ErrorIs(t, err, store.ErrNotFound)

	var verr *services.ValidationError
	_, err = f.svc.PoolExistingQuestions(ctx, theme.ID, sourceText, models.KindQuiz, 0)
	assert.ErrorAs(t, err, &verr)
}

func TestAssembleSession(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	ctx := context.Background()

	theme := &models.Theme{UserID: f.user.ID, Name: "Flask", Keywords: []string{"python", "flask"}}
	require.NoError(t, f.st.CreateTheme(ctx, theme))

	var verr *services.ValidationError
	_, err := f.svc.AssembleSession(ctx, f.user.ID, theme.ID, models.KindQuiz, []string{"a", "b"}, 3)
	assert.ErrorAs(t, err, &verr)

	id, err := f.svc.AssembleSession(ctx, f.user.ID, theme.ID, models.KindQuiz, []string{"a", "b", "c"}, 3)
	require.NoError(t, err)

	session, err := f.st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, session.QuestionsCount)
	assert.Equal(t, []string{"a", "b", "c"}, session.QuestionIDs)
}

func TestCompleteSession(t *testing.T) {
	gen := &stubGenerator{batches: [][]services.GeneratedQuestion{quizItems(2)}}
	f := newFixture(t, gen)
	ctx := context.Background()

	result, err := f.svc.CreateSessionFromPDF(ctx, f.user.ID, []byte("%PDF-"), models.KindQuiz, 2)
	require.NoError(t, err)

	var verr *services.ValidationError
	_, err = f.svc.CompleteSession(ctx, result.Session.ID, 5, 0)
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.CompleteSession(ctx, result.Session.ID, 11, 10)
	assert.ErrorAs(t, err, &verr)

	rate, err := f.svc.CompleteSession(ctx, result.Session.ID, 8, 10)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, rate, 1e-9)

	// Completion bumps usage on every session question.
	for _, id := range result.Session.QuestionIDs {
		question, err := f.st.GetQuestion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, question.TimesUsed)
	}

	_, err = f.svc.CompleteSession(ctx, result.Session.ID, 8, 10)
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)

	_, err = f.svc.CompleteSession(ctx, "missing", 1, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
