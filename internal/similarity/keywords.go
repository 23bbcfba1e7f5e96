// Package similarity implements the deterministic text-matching layer:
// keyword extraction, Jaccard and overlap scoring, and the theme/question
// matchers built on top of them. Everything here is pure and side-effect
// free; persistence and LLM calls live elsewhere.
package similarity

import (
	"iter"
	"sort"
	"strings"
)

const (
	// DefaultTopN caps the keyword set used for text similarity.
	DefaultTopN = 30
	// DefaultThreshold is the minimum score for a theme or question match.
	DefaultThreshold = 0.4

	minTokenLen = 3
)

// Tokenize lowercases the text, strips everything that is not a basic or
// accented Latin letter, a digit, or whitespace, splits on whitespace, and
// drops stop words and tokens shorter than three runes. Order and duplicates
// are preserved.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r >= 'à' && r <= 'ÿ':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	var tokens []string
	for _, w := range strings.Fields(b.String()) {
		if len([]rune(w)) < minTokenLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// Keywords returns up to topN tokens ranked by descending frequency. Ties
// keep first-occurrence order. Empty or all-stop-word input yields an empty
// result, never an error.
func Keywords(text string, topN int) []string {
	if topN <= 0 {
		return nil
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, w := range tokens {
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	// order is first-occurrence; the stable sort preserves it across ties.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

// Extract is the sequence form of Keywords: a finite, restartable iterator
// over the ranked keywords. Ranking is computed per traversal, so the
// sequence always reflects its input text.
func Extract(text string, topN int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, w := range Keywords(text, topN) {
			if !yield(w) {
				return
			}
		}
	}
}

// KeywordSet collects the top-n keywords of a text into a set.
func KeywordSet(text string, topN int) map[string]struct{} {
	set := make(map[string]struct{})
	for w := range Extract(text, topN) {
		set[w] = struct{}{}
	}
	return set
}
