package dedup

import "strings"

const minSimilarityWordLength = 4

// TitleSimilarity computes the Jaccard similarity between the significant
// word sets of two titles. Words shorter than four characters are ignored.
// The measure is symmetric.
func TitleSimilarity(left, right string) float64 {
	leftSet := significantWords(left)
	rightSet := significantWords(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for word := range leftSet {
		if _, ok := rightSet[word]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func significantWords(title string) map[string]struct{} {
	words := splitWords(strings.ToLower(title))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		if len(word) < minSimilarityWordLength {
			continue
		}
		set[word] = struct{}{}
	}
	return set
}
