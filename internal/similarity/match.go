package similarity

import (
	"sort"

	"revizo/internal/models"
)

// ThemeMatch pairs a candidate theme with its overlap score. Produced during
// matching, never persisted.
type ThemeMatch struct {
	Theme models.Theme
	Score float64
}

// QuestionMatch pairs a candidate question with its similarity score.
type QuestionMatch struct {
	Question models.Question
	Score    float64
}

// BestTheme returns the highest-scoring theme whose keyword overlap with the
// candidate keywords reaches the threshold. Among themes tied at the maximum
// score the first in input order wins; the input slice is never reordered.
// A false second return means no theme qualified, which is the normal trigger
// for creating a new theme.
func BestTheme(candidateKeywords []string, themes []models.Theme, threshold float64) (ThemeMatch, bool) {
	var best ThemeMatch
	found := false
	for _, theme := range themes {
		score := KeywordOverlap(candidateKeywords, theme.Keywords)
		if score < threshold {
			continue
		}
		if !found || score > best.Score {
			best = ThemeMatch{Theme: theme, Score: score}
			found = true
		}
	}
	return best, found
}

// MatchQuestions scores every candidate question against the source text and
// returns those at or above the threshold, sorted by descending score with
// stable input-order ties. Truncation to the needed count is the caller's
// job (fill-then-truncate).
func MatchQuestions(sourceText string, questions []models.Question, threshold float64) []QuestionMatch {
	var matches []QuestionMatch
	for _, q := range questions {
		score := TextSimilarity(sourceText, q.QuestionText)
		if score >= threshold {
			matches = append(matches, QuestionMatch{Question: q, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
