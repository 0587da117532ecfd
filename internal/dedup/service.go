// Package dedup decides whether a candidate content item covers the same
// real-world story as something already accepted. The cascade runs four
// stages in order of confidence and short-circuits on the first match.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/globaltime"
)

const (
	DefaultLookback       = 48 * time.Hour
	DefaultTitleThreshold = 0.75
)

type Stage string

const (
	StageNone        Stage = ""
	StageLocator     Stage = "locator"
	StageSignature   Stage = "signature"
	StageTitle       Stage = "title_similarity"
	StageFingerprint Stage = "fingerprint"
)

// Candidate is an incoming item as seen by the cascade.
type Candidate struct {
	Title      string
	Locator    string
	Source     string
	Excerpt    string
	UpstreamID string
}

// Record is a previously accepted item the cascade compares against.
type Record struct {
	ID          string
	Source      string
	Locator     string
	Signature   string
	Title       string
	Fingerprint string
}

type CheckResult struct {
	Duplicate bool
	MatchedID string
	Stage     Stage
	Score     float64
}

// BatchDuplicate pairs a rejected candidate with its match info.
type BatchDuplicate struct {
	Candidate Candidate
	Result    CheckResult
}

// Store lists accepted items within the lookback window. Records from the
// candidate's own source are excluded by the caller passing excludeSource;
// same-source repeats are the adapter's identifier scheme's problem.
type Store interface {
	ListRecent(ctx context.Context, cutoff time.Time, excludeSource string) ([]Record, error)
}

type Service struct {
	store          Store
	logger         zerolog.Logger
	lookback       time.Duration
	titleThreshold float64
}

type Options struct {
	Lookback       time.Duration
	TitleThreshold float64
}

func NewService(store Store, logger zerolog.Logger, opts Options) *Service {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	threshold := opts.TitleThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultTitleThreshold
	}
	return &Service{
		store:          store,
		logger:         logger,
		lookback:       lookback,
		titleThreshold: threshold,
	}
}

// CheckDuplicate runs the cascade for one candidate against the accepted
// items of other sources inside the lookback window.
func (s *Service) CheckDuplicate(ctx context.Context, candidate Candidate) (CheckResult, error) {
	if s == nil || s.store == nil {
		return CheckResult{}, fmt.Errorf("dedup service is not initialized")
	}

	cutoff := globaltime.UTC().Add(-s.lookback)
	records, err := s.store.ListRecent(ctx, cutoff, strings.TrimSpace(candidate.Source))
	if err != nil {
		return CheckResult{}, fmt.Errorf("list recent accepted items: %w", err)
	}

	return s.checkAgainst(candidate, records), nil
}

// DeduplicateBatch admits candidates in order, checking each against both
// the persisted lookback set and the candidates already admitted earlier in
// the same batch, so two duplicates arriving together are not both accepted.
func (s *Service) DeduplicateBatch(ctx context.Context, candidates []Candidate) ([]Candidate, []BatchDuplicate, error) {
	if s == nil || s.store == nil {
		return nil, nil, fmt.Errorf("dedup service is not initialized")
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	cutoff := globaltime.UTC().Add(-s.lookback)
	records, err := s.store.ListRecent(ctx, cutoff, "")
	if err != nil {
		return nil, nil, fmt.Errorf("list recent accepted items: %w", err)
	}

	unique := make([]Candidate, 0, len(candidates))
	duplicates := make([]BatchDuplicate, 0)
	accepted := append([]Record(nil), records...)

	for _, candidate := range candidates {
		source := strings.TrimSpace(candidate.Source)
		visible := make([]Record, 0, len(accepted))
		for _, record := range accepted {
			if source != "" && strings.EqualFold(record.Source, source) {
				continue
			}
			visible = append(visible, record)
		}

		result := s.checkAgainst(candidate, visible)
		if result.Duplicate {
			duplicates = append(duplicates, BatchDuplicate{Candidate: candidate, Result: result})
			continue
		}

		unique = append(unique, candidate)
		accepted = append(accepted, RecordOf(candidate))
	}

	return unique, duplicates, nil
}

// RecordOf derives the comparable record for a candidate, computing the
// canonical signature and fingerprint once.
func RecordOf(candidate Candidate) Record {
	return Record{
		ID:          strings.TrimSpace(candidate.UpstreamID),
		Source:      strings.TrimSpace(candidate.Source),
		Locator:     strings.TrimSpace(candidate.Locator),
		Signature:   Signature(candidate.Locator),
		Title:       strings.TrimSpace(candidate.Title),
		Fingerprint: Fingerprint(candidate.Title, candidate.Excerpt),
	}
}

func (s *Service) checkAgainst(candidate Candidate, records []Record) CheckResult {
	rawLocator := strings.ToLower(strings.TrimSpace(candidate.Locator))
	if rawLocator != "" {
		for _, record := range records {
			if strings.ToLower(strings.TrimSpace(record.Locator)) == rawLocator {
				return CheckResult{Duplicate: true, MatchedID: record.ID, Stage: StageLocator, Score: 1}
			}
		}
	}

	signature := Signature(candidate.Locator)
	if signature != "" {
		for _, record := range records {
			if record.Signature != "" && record.Signature == signature {
				return CheckResult{Duplicate: true, MatchedID: record.ID, Stage: StageSignature, Score: 1}
			}
		}
	}

	title := strings.TrimSpace(candidate.Title)
	if title != "" {
		for _, record := range records {
			score := TitleSimilarity(title, record.Title)
			if score >= s.titleThreshold {
				return CheckResult{Duplicate: true, MatchedID: record.ID, Stage: StageTitle, Score: score}
			}
		}
	}

	fingerprint := Fingerprint(candidate.Title, candidate.Excerpt)
	if fingerprint != "" {
		for _, record := range records {
			if record.Fingerprint != "" && record.Fingerprint == fingerprint {
				return CheckResult{Duplicate: true, MatchedID: record.ID, Stage: StageFingerprint, Score: 1}
			}
		}
	}

	return CheckResult{}
}
