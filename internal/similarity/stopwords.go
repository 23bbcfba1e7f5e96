package similarity

// stopWords is the bilingual filter applied during tokenization. Study
// material arrives in French or English, so both inventories are kept.
var stopWords = map[string]struct{}{}

func init() {
	words := []string{
		// French
		"le", "la", "les", "un", "une", "des", "de", "du", "et", "ou", "mais",
		"donc", "or", "ni", "car", "ce", "ces", "mon", "ton", "son", "ma", "ta",
		"sa", "mes", "tes", "ses", "notre", "votre", "leur", "nos", "vos", "leurs",
		"qui", "que", "quoi", "dont", "où", "dans", "sur", "sous", "avec", "sans",
		"pour", "par", "est", "sont", "être", "avoir", "il", "elle", "on", "nous",
		"vous", "ils", "elles", "je", "tu", "à", "au", "aux", "en", "y", "plus",
		// English
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "is", "are", "was", "were", "be", "been",
		"being", "have", "has", "had", "do", "does", "did", "will", "would",
		"should", "could", "may", "might", "must", "can", "it", "this", "that",
		"these", "those", "i", "you", "he", "she", "we", "they", "what", "which",
		"who", "when", "where", "why", "how",
	}
	for _, w := range words {
		stopWords[w] = struct{}{}
	}
}
