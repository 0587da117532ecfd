package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	records []Record
}

func (s *fakeStore) ListRecent(_ context.Context, _ time.Time, excludeSource string) ([]Record, error) {
	if excludeSource == "" {
		return append([]Record(nil), s.records...), nil
	}
	visible := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		if record.Source == excludeSource {
			continue
		}
		visible = append(visible, record)
	}
	return visible, nil
}

func newTestService(t *testing.T, records []Record) *Service {
	t.Helper()
	return NewService(&fakeStore{records: records}, zerolog.Nop(), Options{})
}

func TestCheckDuplicateExactLocator(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "Water main break floods streets in Harlem",
		Locator:    "https://news-a.example/harlem-water-main",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "Completely different headline",
		Locator:    "https://news-a.example/harlem-water-main",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !result.Duplicate || result.Stage != StageLocator {
		t.Fatalf("expected locator-stage duplicate, got %+v", result)
	}
	if result.MatchedID != "a-1" {
		t.Fatalf("unexpected matched id: %q", result.MatchedID)
	}
}

func TestCheckDuplicateSignatureNotLocator(t *testing.T) {
	t.Parallel()

	// The raw locators differ (dated path vs ID suffix) but canonicalize to
	// the same signature, so the match lands on the second stage.
	existing := RecordOf(Candidate{
		Title:      "Water main break floods streets",
		Locator:    "https://news-a.example/2025/06/02/harlem-water-main.html",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "Unrelated phrasing entirely",
		Locator:    "https://news-a.example/harlem-water-main-99120",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !result.Duplicate || result.Stage != StageSignature {
		t.Fatalf("expected signature-stage duplicate, got %+v", result)
	}
}

func TestCheckDuplicateTitleSimilarity(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "Subway flooding closes stations across Queens",
		Locator:    "https://news-a.example/queens-subway-flooding",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "Subway flooding closes stations in Queens",
		Locator:    "https://news-b.example/mta-chaos-this-morning",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !result.Duplicate || result.Stage != StageTitle {
		t.Fatalf("expected title-stage duplicate, got %+v", result)
	}
	if result.Score < 0.75 {
		t.Fatalf("expected score >= threshold, got %f", result.Score)
	}
}

func TestCheckDuplicateFingerprint(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "Flooding closes 3 subway stations in Queens",
		Locator:    "https://news-a.example/flooding-report",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	// Titles share too few significant words for the Jaccard stage, but the
	// salient tokens coincide.
	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "Queens subway: 3 stops shut by flooding",
		Locator:    "https://news-b.example/another-path",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !result.Duplicate || result.Stage != StageFingerprint {
		t.Fatalf("expected fingerprint-stage duplicate, got %+v", result)
	}
}

func TestCheckDuplicateRewordedCrossSourceTitles(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "L train running with delays",
		Locator:    "https://news-a.example/l-train-delays",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	// Only two significant words overlap, so the Jaccard stage passes on the
	// pair. Both titles still describe the same delay and must reduce to the
	// same fingerprint.
	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "L train delays due to signal problem",
		Locator:    "https://news-b.example/l-train-signal-problem",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if !result.Duplicate || result.Stage != StageFingerprint {
		t.Fatalf("expected fingerprint-stage duplicate, got %+v", result)
	}
	if result.MatchedID != "a-1" {
		t.Fatalf("unexpected matched id: %q", result.MatchedID)
	}
}

func TestCheckDuplicateIgnoresSameSource(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "Water main break floods streets in Harlem",
		Locator:    "https://news-a.example/harlem-water-main",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "Water main break floods streets in Harlem",
		Locator:    "https://news-a.example/harlem-water-main",
		Source:     "news-a",
		UpstreamID: "a-2",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("did not expect same-source records to count as duplicates, got %+v", result)
	}
}

func TestCheckDuplicateUnique(t *testing.T) {
	t.Parallel()

	existing := RecordOf(Candidate{
		Title:      "Subway flooding closes stations",
		Locator:    "https://news-a.example/subway-flooding",
		Source:     "news-a",
		UpstreamID: "a-1",
	})
	service := newTestService(t, []Record{existing})

	result, err := service.CheckDuplicate(context.Background(), Candidate{
		Title:      "City council passes zoning reform",
		Locator:    "https://news-b.example/zoning-reform",
		Source:     "news-b",
		UpstreamID: "b-1",
	})
	if err != nil {
		t.Fatalf("check duplicate: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected unique candidate, got %+v", result)
	}
}

func TestDeduplicateBatchCatchesIntraBatchDuplicates(t *testing.T) {
	t.Parallel()

	service := newTestService(t, nil)

	candidates := []Candidate{
		{
			Title:      "Subway flooding closes stations across Queens",
			Locator:    "https://news-a.example/queens-flooding",
			Source:     "news-a",
			UpstreamID: "a-1",
		},
		{
			Title:      "Subway flooding closes stations in Queens",
			Locator:    "https://news-b.example/flooding-coverage",
			Source:     "news-b",
			UpstreamID: "b-1",
		},
		{
			Title:      "City council passes zoning reform",
			Locator:    "https://news-b.example/zoning-reform",
			Source:     "news-b",
			UpstreamID: "b-2",
		},
	}

	unique, duplicates, err := service.DeduplicateBatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("deduplicate batch: %v", err)
	}
	if len(unique) != 2 {
		t.Fatalf("expected 2 unique candidates, got %d", len(unique))
	}
	if len(duplicates) != 1 {
		t.Fatalf("expected 1 duplicate, got %d", len(duplicates))
	}
	if duplicates[0].Candidate.UpstreamID != "b-1" {
		t.Fatalf("expected second flooding item rejected, got %q", duplicates[0].Candidate.UpstreamID)
	}
	if duplicates[0].Result.MatchedID != "a-1" {
		t.Fatalf("expected match against first flooding item, got %q", duplicates[0].Result.MatchedID)
	}
}

func TestDeduplicateBatchAllowsSameSourceRepeats(t *testing.T) {
	t.Parallel()

	service := newTestService(t, nil)

	candidates := []Candidate{
		{
			Title:      "Subway flooding closes stations across Queens",
			Locator:    "https://news-a.example/queens-flooding",
			Source:     "news-a",
			UpstreamID: "a-1",
		},
		{
			Title:      "Subway flooding closes stations across Queens",
			Locator:    "https://news-a.example/queens-flooding",
			Source:     "news-a",
			UpstreamID: "a-2",
		},
	}

	unique, duplicates, err := service.DeduplicateBatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("deduplicate batch: %v", err)
	}
	if len(unique) != 2 || len(duplicates) != 0 {
		t.Fatalf("expected same-source repeats to pass through, got %d unique %d duplicates", len(unique), len(duplicates))
	}
}
