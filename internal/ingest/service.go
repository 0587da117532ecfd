// Package ingest accepts raw adapter payload batches: each record is
// schema-validated, deduplicated against recent accepted content, and
// persisted. Invalid records never fail the batch; they are aggregated into a
// per-source failure report so schema drift surfaces as an alert, not an
// outage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/dedup"
	"citypulse.nyc/pulse/internal/globaltime"
	"citypulse.nyc/pulse/schema"
)

const maxFailureSamples = 3

// Item is an accepted content item in its persisted shape. Signature and
// Fingerprint are computed once at ingest so later dedup passes compare
// stored values instead of recomputing.
type Item struct {
	Source       string
	SourceItemID string
	Title        string
	ContentType  string
	Priority     int
	Locator      string
	Signature    string
	Fingerprint  string
	Excerpt      string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Windows      []string
	Metadata     map[string]any
}

// FailureSample is one representative validation failure.
type FailureSample struct {
	SourceItemID string
	Reason       string
}

// FailureReport aggregates a batch's validation failures for one source.
// Samples holds at most three representative failures.
type FailureReport struct {
	Source     string
	Count      int
	Samples    []FailureSample
	ReportedAt time.Time
}

// BatchResult summarizes one ingest batch.
type BatchResult struct {
	Received   int
	Invalid    int
	Duplicates int
	Accepted   int
	Report     *FailureReport
}

// Store persists accepted items and failure reports. Insert reports whether
// a row was actually written; a signature collision with an existing row is
// absorbed and returns false.
type Store interface {
	Insert(ctx context.Context, item Item) (bool, error)
	RecordFailureReport(ctx context.Context, report FailureReport) error
}

type Service struct {
	store   Store
	deduper *dedup.Service
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

func NewService(store Store, deduper *dedup.Service, cat *catalog.Catalog, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		deduper: deduper,
		catalog: cat,
		logger:  logger,
	}
}

// IngestBatch processes one adapter batch. Invalid payloads are skipped and
// aggregated; valid ones run the dedup cascade as a group, and survivors are
// persisted. An insert absorbed by a stored signature collision counts as a
// duplicate, not an acceptance.
func (s *Service) IngestBatch(ctx context.Context, source string, payloads []json.RawMessage) (BatchResult, error) {
	if s == nil || s.store == nil || s.deduper == nil {
		return BatchResult{}, fmt.Errorf("ingest service is not initialized")
	}

	result := BatchResult{Received: len(payloads)}
	report := FailureReport{Source: strings.TrimSpace(source)}

	validated := make([]*payloadschema.Candidate, 0, len(payloads))
	for _, payload := range payloads {
		candidate, err := payloadschema.ValidateCandidatePayload(payload)
		if err != nil {
			report.Count++
			if len(report.Samples) < maxFailureSamples {
				report.Samples = append(report.Samples, FailureSample{
					SourceItemID: extractSourceItemID(payload),
					Reason:       err.Error(),
				})
			}
			continue
		}
		validated = append(validated, candidate)
	}
	result.Invalid = report.Count

	candidates := make([]dedup.Candidate, 0, len(validated))
	bySourceItemID := make(map[string]*payloadschema.Candidate, len(validated))
	for _, v := range validated {
		candidates = append(candidates, dedup.Candidate{
			Title:      v.Title,
			Locator:    stringValue(v.Locator),
			Source:     v.Source,
			Excerpt:    stringValue(v.Excerpt),
			UpstreamID: v.SourceItemID,
		})
		bySourceItemID[dedupKey(v.Source, v.SourceItemID)] = v
	}

	unique, duplicates, err := s.deduper.DeduplicateBatch(ctx, candidates)
	if err != nil {
		return result, fmt.Errorf("deduplicate batch: %w", err)
	}
	result.Duplicates = len(duplicates)
	for _, d := range duplicates {
		s.logger.Debug().
			Str("source", d.Candidate.Source).
			Str("source_item_id", d.Candidate.UpstreamID).
			Str("stage", string(d.Result.Stage)).
			Str("matched_id", d.Result.MatchedID).
			Msg("candidate rejected as duplicate")
	}

	now := globaltime.UTC()
	for _, candidate := range unique {
		v := bySourceItemID[dedupKey(candidate.Source, candidate.UpstreamID)]
		if v == nil {
			continue
		}
		inserted, err := s.store.Insert(ctx, s.itemOf(v, candidate, now))
		if err != nil {
			return result, fmt.Errorf("insert accepted item %s/%s: %w", candidate.Source, candidate.UpstreamID, err)
		}
		if inserted {
			result.Accepted++
		} else {
			result.Duplicates++
		}
	}

	if report.Count > 0 {
		report.ReportedAt = now
		result.Report = &report
		if err := s.store.RecordFailureReport(ctx, report); err != nil {
			return result, fmt.Errorf("record failure report: %w", err)
		}
		s.logger.Warn().
			Str("source", report.Source).
			Int("failures", report.Count).
			Interface("samples", report.Samples).
			Msg("batch contained invalid payloads")
	}

	s.logger.Info().
		Str("source", strings.TrimSpace(source)).
		Int("received", result.Received).
		Int("invalid", result.Invalid).
		Int("duplicates", result.Duplicates).
		Int("accepted", result.Accepted).
		Msg("ingest batch processed")
	return result, nil
}

func (s *Service) itemOf(v *payloadschema.Candidate, candidate dedup.Candidate, now time.Time) Item {
	contentType := strings.TrimSpace(strings.ToLower(v.ContentType))
	priority := s.catalog.Resolve(contentType).DefaultPriority
	if v.Priority != nil {
		priority = *v.Priority
	}

	createdAt := now
	if v.CreatedAt != nil {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*v.CreatedAt)); err == nil {
			createdAt = parsed.UTC()
		}
	}
	var expiresAt *time.Time
	if v.ExpiresAt != nil {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*v.ExpiresAt)); err == nil {
			utc := parsed.UTC()
			expiresAt = &utc
		}
	}

	record := dedup.RecordOf(candidate)
	return Item{
		Source:       record.Source,
		SourceItemID: strings.TrimSpace(v.SourceItemID),
		Title:        record.Title,
		ContentType:  contentType,
		Priority:     priority,
		Locator:      record.Locator,
		Signature:    record.Signature,
		Fingerprint:  record.Fingerprint,
		Excerpt:      stringValue(v.Excerpt),
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		Windows:      v.Windows,
		Metadata:     v.Metadata,
	}
}

func dedupKey(source, sourceItemID string) string {
	return strings.TrimSpace(source) + "\x00" + strings.TrimSpace(sourceItemID)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// extractSourceItemID best-effort pulls the identifier out of an invalid
// payload so failure samples are traceable upstream.
func extractSourceItemID(payload json.RawMessage) string {
	var probe struct {
		SourceItemID string `json:"source_item_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.SourceItemID)
}
