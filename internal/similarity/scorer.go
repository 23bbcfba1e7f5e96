package similarity

import "strings"

// TextSimilarity scores two freeform texts with the Jaccard index over their
// top-30 keyword sets. It returns 0.0 when either side yields no keywords,
// and a value in [0,1] otherwise. Symmetric and total for any string input.
func TextSimilarity(a, b string) float64 {
	setA := KeywordSet(a, DefaultTopN)
	setB := KeywordSet(b, DefaultTopN)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// KeywordOverlap measures how much of the smaller keyword list is covered by
// the other: |intersection| / min(|A|, |B|) over the normalized sets. A short
// document keyword list matched against a long theme keyword list scores on
// its own size, not on the union. Returns 0.0 when either set is empty.
func KeywordOverlap(a, b []string) float64 {
	setA := normalizeKeywords(a)
	setB := normalizeKeywords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	minSize := len(setA)
	if len(setB) < minSize {
		minSize = len(setB)
	}
	return float64(inter) / float64(minSize)
}

// NormalizeKeywords lowercases and trims a keyword list, dropping empties and
// duplicates while preserving first-occurrence order. Themes persist their
// keyword sets in this form.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func normalizeKeywords(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
