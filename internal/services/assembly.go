package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"revizo/internal/models"
	"revizo/internal/similarity"
	"revizo/internal/store"
)

const (
	// MinQuestionCount and MaxQuestionCount bound the requested session size.
	MinQuestionCount = 1
	MaxQuestionCount = 50

	// maxReplacementRounds caps the extra generation calls made to replace
	// malformed items before the pipeline gives up.
	maxReplacementRounds = 2

	quizAnswerCount = 4
)

// TextExtractor pulls plain text out of an uploaded document.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// ThemeAnalyzer infers a document's subject theme.
type ThemeAnalyzer interface {
	AnalyzeTheme(ctx context.Context, text string) (*ThemeSummary, error)
}

// QuestionGenerator produces new question/answer sets from source text.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, text string, kind models.SessionKind, count int) ([]GeneratedQuestion, error)
}

// AssemblyService runs the study-session pipeline: resolve the document's
// theme against the user's existing themes, pool matching persisted
// questions, generate the shortfall, and persist a session over the combined
// list inside one transaction.
type AssemblyService struct {
	store     *store.Store
	pdf       TextExtractor
	analyzer  ThemeAnalyzer
	generator QuestionGenerator
	threshold float64
	log       *zap.Logger
}

func NewAssemblyService(
	st *store.Store,
	pdf TextExtractor,
	analyzer ThemeAnalyzer,
	generator QuestionGenerator,
	log *zap.Logger,
) *AssemblyService {
	return &AssemblyService{
		store:     st,
		pdf:       pdf,
		analyzer:  analyzer,
		generator: generator,
		threshold: similarity.DefaultThreshold,
		log:       log,
	}
}

// SessionResult is what a successful pipeline run hands back to the caller.
type SessionResult struct {
	Session          *models.Session
	Theme            *models.Theme
	ThemeWasExisting bool
	PooledCount      int
	GeneratedCount   int
}

// CreateSessionFromPDF is the full pipeline over an uploaded PDF. Any
// collaborator failure aborts the run with nothing committed; a
// theme-creation race is retried once with the competing theme visible.
func (s *AssemblyService) CreateSessionFromPDF(
	ctx context.Context,
	userID string,
	pdfData []byte,
	kind models.SessionKind,
	count int,
) (*SessionResult, error) {
	if err := validateRequest(kind, count); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	text, err := s.pdf.ExtractText(pdfData)
	if err != nil {
		return nil, err
	}

	summary, err := s.analyzer.AnalyzeTheme(ctx, text)
	if err != nil {
		return nil, err
	}
	keywords := similarity.NormalizeKeywords(summary.Keywords)
	if len(keywords) == 0 {
		return nil, &GenerationError{Op: "analyze theme", Err: errors.New("summary yielded no usable keywords")}
	}

	result, err := s.assemble(ctx, userID, text, summary, keywords, kind, count)
	if errors.Is(err, store.ErrConflict) {
		s.log.Warn("theme resolution raced with a concurrent upload, re-matching",
			zap.String("user_id", userID), zap.String("theme", summary.Name))
		result, err = s.assemble(ctx, userID, text, summary, keywords, kind, count)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("session assembled",
		zap.String("session_id", result.Session.ID),
		zap.String("theme_id", result.Theme.ID),
		zap.Bool("theme_existing", result.ThemeWasExisting),
		zap.Int("pooled", result.PooledCount),
		zap.Int("generated", result.GeneratedCount))
	return result, nil
}

// assemble performs one attempt: match and pool outside the transaction,
// generate the shortfall, then persist theme/questions/session atomically.
// The in-transaction re-match guards against a theme created between the
// read pass and the commit; a divergence surfaces as store.ErrConflict so
// the caller retries.
func (s *AssemblyService) assemble(
	ctx context.Context,
	userID, text string,
	summary *ThemeSummary,
	keywords []string,
	kind models.SessionKind,
	count int,
) (*SessionResult, error) {
	themes, err := s.store.ListThemesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	match, matched := similarity.BestTheme(keywords, themes, s.threshold)

	var pooledIDs []string
	if matched {
		pooledIDs, err = s.poolQuestions(ctx, s.store, match.Theme.ID, text, kind, count)
		if err != nil {
			return nil, err
		}
	}

	var newQuestions []models.Question
	if remaining := count - len(pooledIDs); remaining > 0 {
		newQuestions, err = s.generateValidated(ctx, text, kind, remaining)
		if err != nil {
			return nil, err
		}
	}

	var result *SessionResult
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		current, err := tx.ListThemesByUser(ctx, userID)
		if err != nil {
			return err
		}
		nowMatch, nowMatched := similarity.BestTheme(keywords, current, s.threshold)
		if nowMatched != matched || (matched && nowMatch.Theme.ID != match.Theme.ID) {
			return fmt.Errorf("theme set changed during assembly: %w", store.ErrConflict)
		}

		var theme *models.Theme
		if matched {
			if err := tx.TouchThemeUsage(ctx, match.Theme.ID, keywords); err != nil {
				return err
			}
			theme, err = tx.GetTheme(ctx, match.Theme.ID)
			if err != nil {
				return err
			}
		} else {
			theme = &models.Theme{
				UserID:      userID,
				Name:        strings.TrimSpace(summary.Name),
				Description: nullString(summary.Description),
				Keywords:    keywords,
			}
			if err := tx.CreateTheme(ctx, theme); err != nil {
				return err
			}
		}

		questionIDs := append([]string{}, pooledIDs...)
		for i := range newQuestions {
			newQuestions[i].ThemeID = theme.ID
			if err := tx.CreateQuestion(ctx, &newQuestions[i]); err != nil {
				return err
			}
			questionIDs = append(questionIDs, newQuestions[i].ID)
		}
		if err := tx.AddThemeQuestions(ctx, theme.ID, len(newQuestions)); err != nil {
			return err
		}
		theme.QuestionsCount += len(newQuestions)

		session := &models.Session{
			UserID:      userID,
			ThemeID:     sql.NullString{String: theme.ID, Valid: true},
			Kind:        kind,
			QuestionIDs: questionIDs,
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}

		result = &SessionResult{
			Session:          session,
			Theme:            theme,
			ThemeWasExisting: matched,
			PooledCount:      len(pooledIDs),
			GeneratedCount:   len(newQuestions),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveTheme matches the summary against the user's themes, reusing the
// best match at or above the threshold or creating a new theme otherwise.
// Resolving twice with identical keywords and an unchanged theme table
// returns the same theme both times.
func (s *AssemblyService) ResolveTheme(ctx context.Context, userID string, summary *ThemeSummary) (*models.Theme, bool, error) {
	keywords := similarity.NormalizeKeywords(summary.Keywords)
	if len(keywords) == 0 {
		return nil, false, validationf("theme keywords must not be empty")
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, false, err
	}

	theme, created, err := s.resolveThemeOnce(ctx, userID, summary, keywords)
	if errors.Is(err, store.ErrConflict) {
		// The competing theme is committed now; the re-match will find it.
		theme, created, err = s.resolveThemeOnce(ctx, userID, summary, keywords)
	}
	return theme, created, err
}

func (s *AssemblyService) resolveThemeOnce(ctx context.Context, userID string, summary *ThemeSummary, keywords []string) (*models.Theme, bool, error) {
	var (
		theme   *models.Theme
		created bool
	)
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		themes, err := tx.ListThemesByUser(ctx, userID)
		if err != nil {
			return err
		}
		if match, ok := similarity.BestTheme(keywords, themes, s.threshold); ok {
			if err := tx.TouchThemeUsage(ctx, match.Theme.ID, keywords); err != nil {
				return err
			}
			theme, err = tx.GetTheme(ctx, match.Theme.ID)
			return err
		}

		theme = &models.Theme{
			UserID:      userID,
			Name:        strings.TrimSpace(summary.Name),
			Description: nullString(summary.Description),
			Keywords:    keywords,
		}
		created = true
		return tx.CreateTheme(ctx, theme)
	})
	if err != nil {
		return nil, false, err
	}
	return theme, created, nil
}

// PoolExistingQuestions returns up to maxCount ids of the theme's questions
// of the given kind whose similarity to the source text reaches the
// threshold, best first.
func (s *AssemblyService) PoolExistingQuestions(ctx context.Context, themeID, sourceText string, kind models.SessionKind, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, validationf("max count must be positive")
	}
	if _, err := s.store.GetTheme(ctx, themeID); err != nil {
		return nil, err
	}
	return s.poolQuestions(ctx, s.store, themeID, sourceText, kind, maxCount)
}

// questionLister is the read surface pooling needs; both *store.Store and
// *store.Tx satisfy it.
type questionLister interface {
	ListQuestionsByTheme(ctx context.Context, themeID string, kind models.SessionKind) ([]models.Question, error)
}

func (s *AssemblyService) poolQuestions(ctx context.Context, q questionLister, themeID, sourceText string, kind models.SessionKind, maxCount int) ([]string, error) {
	existing, err := q.ListQuestionsByTheme(ctx, themeID, kind)
	if err != nil {
		return nil, err
	}
	matches := similarity.MatchQuestions(sourceText, existing, s.threshold)
	if len(matches) > maxCount {
		matches = matches[:maxCount]
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Question.ID)
	}
	return ids, nil
}

// AssembleSession creates a session over an already-resolved question list.
// The list length must equal the requested count; a short list is a caller
// error here, not a fill trigger.
func (s *AssemblyService) AssembleSession(ctx context.Context, userID, themeID string, kind models.SessionKind, questionIDs []string, requestedCount int) (string, error) {
	if err := validateRequest(kind, requestedCount); err != nil {
		return "", err
	}
	if len(questionIDs) != requestedCount {
		return "", validationf("question list has %d ids, requested %d", len(questionIDs), requestedCount)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return "", err
	}
	if _, err := s.store.GetTheme(ctx, themeID); err != nil {
		return "", err
	}

	session := &models.Session{
		UserID:      userID,
		ThemeID:     sql.NullString{String: themeID, Valid: true},
		Kind:        kind,
		QuestionIDs: questionIDs,
	}
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// CompleteSession performs the one-shot completion transition and returns
// the resulting success rate. Question usage counters are bumped in the same
// transaction.
func (s *AssemblyService) CompleteSession(ctx context.Context, sessionID string, score, maxScore int) (float64, error) {
	if maxScore <= 0 {
		return 0, validationf("max score must be positive")
	}
	if score < 0 || score > maxScore {
		return 0, validationf("score must be between 0 and max score")
	}

	var rate float64
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		session, err := tx.CompleteSession(ctx, sessionID, score, maxScore)
		if err != nil {
			return err
		}
		if err := tx.IncrementQuestionUsage(ctx, session.QuestionIDs); err != nil {
			return err
		}
		rate = session.SuccessRate()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rate, nil
}

// generateValidated asks the generator for needed items, drops malformed
// ones, and requests replacements for the shortfall within the retry budget.
// Failing to reach the needed count fails the whole pipeline; a short
// session is never returned.
func (s *AssemblyService) generateValidated(ctx context.Context, text string, kind models.SessionKind, needed int) ([]models.Question, error) {
	valid := make([]models.Question, 0, needed)
	request := needed
	for round := 0; ; round++ {
		items, err := s.generator.GenerateQuestions(ctx, text, kind, request)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if len(valid) == needed {
				break
			}
			question, err := buildQuestion(item, kind)
			if err != nil {
				s.log.Warn("dropping malformed generated question", zap.Error(err))
				continue
			}
			valid = append(valid, *question)
		}
		if len(valid) == needed {
			return valid, nil
		}
		if round >= maxReplacementRounds {
			return nil, &GenerationError{
				Op:  "generate questions",
				Err: fmt.Errorf("only %d of %d valid items after %d rounds", len(valid), needed, round+1),
			}
		}
		request = needed - len(valid)
	}
}

// buildQuestion turns one generator item into a persistable question,
// enforcing the answer-shape invariants: quiz items need exactly 4 answers
// with exactly 1 correct; flashcards need exactly 1 answer, marked correct.
func buildQuestion(item GeneratedQuestion, kind models.SessionKind) (*models.Question, error) {
	text := strings.TrimSpace(item.Question)
	if text == "" {
		return nil, &MalformedGenerationError{Reason: "empty question text"}
	}

	question := &models.Question{
		Kind:         kind,
		QuestionText: text,
		Difficulty:   models.ParseDifficulty(item.Difficulty),
		Explanation:  nullString(item.Explanation),
		Source:       models.SourceAIGenerated,
	}

	switch kind {
	case models.KindQuiz:
		if len(item.Answers) != quizAnswerCount {
			return nil, &MalformedGenerationError{
				Reason: fmt.Sprintf("quiz item has %d answers, want %d", len(item.Answers), quizAnswerCount),
			}
		}
		correct := 0
		for i, ans := range item.Answers {
			answerText := strings.TrimSpace(ans.Text)
			if answerText == "" {
				return nil, &MalformedGenerationError{Reason: fmt.Sprintf("empty answer text at position %d", i)}
			}
			if ans.IsCorrect {
				correct++
			}
			question.Answers = append(question.Answers, models.Answer{
				AnswerText: answerText,
				IsCorrect:  ans.IsCorrect,
				Position:   i,
			})
		}
		if correct != 1 {
			return nil, &MalformedGenerationError{
				Reason: fmt.Sprintf("quiz item has %d correct answers, want exactly 1", correct),
			}
		}

	case models.KindFlashcard:
		answer := strings.TrimSpace(item.Answer)
		if answer == "" && len(item.Answers) == 1 {
			// Some generator outputs use the quiz shape for flashcards too.
			answer = strings.TrimSpace(item.Answers[0].Text)
		}
		if answer == "" {
			return nil, &MalformedGenerationError{Reason: "flashcard item has no answer"}
		}
		question.Answers = []models.Answer{{
			AnswerText: answer,
			IsCorrect:  true,
			Position:   0,
		}}

	default:
		return nil, &MalformedGenerationError{Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	return question, nil
}

func validateRequest(kind models.SessionKind, count int) error {
	if kind != models.KindQuiz && kind != models.KindFlashcard {
		return validationf("unknown session kind %q", kind)
	}
	if count < MinQuestionCount || count > MaxQuestionCount {
		return validationf("question count must be between %d and %d", MinQuestionCount, MaxQuestionCount)
	}
	return nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
