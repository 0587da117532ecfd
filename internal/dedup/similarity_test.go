package dedup

import "testing"

func TestTitleSimilarityIdentical(t *testing.T) {
	t.Parallel()

	score := TitleSimilarity(
		"Subway flooding closes stations in Queens",
		"Subway flooding closes stations in Queens",
	)
	if score != 1 {
		t.Fatalf("expected similarity 1 for identical titles, got %f", score)
	}
}

func TestTitleSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	left := "Alternate side parking suspended citywide for snow"
	right := "Parking suspended citywide as snow arrives"
	if TitleSimilarity(left, right) != TitleSimilarity(right, left) {
		t.Fatalf("expected symmetric similarity")
	}
}

func TestTitleSimilarityIgnoresShortWords(t *testing.T) {
	t.Parallel()

	// Only words of four or more characters count, so connective words do
	// not inflate the score.
	score := TitleSimilarity("A to the end", "A to the end")
	if score != 0 {
		t.Fatalf("expected 0 when no significant words, got %f", score)
	}
}

func TestTitleSimilarityDisjoint(t *testing.T) {
	t.Parallel()

	score := TitleSimilarity(
		"Subway flooding closes stations",
		"Mayor announces budget proposal",
	)
	if score != 0 {
		t.Fatalf("expected 0 for disjoint titles, got %f", score)
	}
}

func TestTitleSimilarityAboveThresholdForRewordings(t *testing.T) {
	t.Parallel()

	// Shared significant words: subway, flooding, closes, stations, queens.
	score := TitleSimilarity(
		"Subway flooding closes stations across Queens",
		"Subway flooding closes stations in Queens",
	)
	if score < 0.75 {
		t.Fatalf("expected rewording to score >= 0.75, got %f", score)
	}
}
