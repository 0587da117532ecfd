package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/dedup"
)

type fakeStore struct {
	items       []Item
	rejectKeys  map[string]bool
	reports     []FailureReport
	insertCalls int
}

func (s *fakeStore) Insert(_ context.Context, item Item) (bool, error) {
	s.insertCalls++
	if s.rejectKeys[item.Source+"/"+item.SourceItemID] {
		return false, nil
	}
	s.items = append(s.items, item)
	return true, nil
}

func (s *fakeStore) RecordFailureReport(_ context.Context, report FailureReport) error {
	s.reports = append(s.reports, report)
	return nil
}

type emptyDedupStore struct{}

func (emptyDedupStore) ListRecent(_ context.Context, _ time.Time, _ string) ([]dedup.Record, error) {
	return nil, nil
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	deduper := dedup.NewService(emptyDedupStore{}, zerolog.Nop(), dedup.Options{})
	return NewService(store, deduper, cat, zerolog.Nop())
}

func payload(t *testing.T, fields map[string]any) json.RawMessage {
	t.Helper()
	base := map[string]any{
		"payload_version": "v1",
		"source":          "nyc-311",
		"source_item_id":  "item-1",
		"title":           "Alternate side parking suspended for Juneteenth",
		"content_type":    "parking_status",
	}
	for k, v := range fields {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	raw, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestIngestBatchAcceptsValidPayloads(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(t, store)

	result, err := service.IngestBatch(context.Background(), "nyc-311", []json.RawMessage{
		payload(t, map[string]any{
			"source_item_id": "item-1",
			"locator":        "https://nyc311.example/asp/juneteenth",
			"priority":       72,
		}),
		payload(t, map[string]any{
			"source_item_id": "item-2",
			"title":          "Water service interruption on Atlantic Avenue",
			"content_type":   "service_outage",
		}),
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if result.Received != 2 || result.Invalid != 0 || result.Duplicates != 0 || result.Accepted != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Report != nil {
		t.Fatalf("did not expect a failure report, got %+v", result.Report)
	}
	if len(store.items) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(store.items))
	}

	first := store.items[0]
	if first.Priority != 72 {
		t.Fatalf("expected explicit priority kept, got %d", first.Priority)
	}
	if first.Signature == "" {
		t.Fatalf("expected signature computed at ingest")
	}
}

func TestIngestBatchAppliesCatalogDefaultPriority(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(t, store)

	_, err := service.IngestBatch(context.Background(), "nyc-311", []json.RawMessage{
		payload(t, map[string]any{"content_type": "parking_status"}),
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected 1 stored item, got %d", len(store.items))
	}
	// parking_status defaults to priority 60 in the catalog.
	if store.items[0].Priority != 60 {
		t.Fatalf("expected catalog default priority 60, got %d", store.items[0].Priority)
	}
}

func TestIngestBatchAggregatesInvalidPayloads(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(t, store)

	batch := []json.RawMessage{
		payload(t, map[string]any{"source_item_id": "ok-1"}),
		payload(t, map[string]any{"source_item_id": "bad-1", "title": nil}),
		payload(t, map[string]any{"source_item_id": "bad-2", "priority": 150}),
		payload(t, map[string]any{"source_item_id": "bad-3", "payload_version": "v2"}),
		payload(t, map[string]any{"source_item_id": "bad-4", "unknown_field": true}),
	}

	result, err := service.IngestBatch(context.Background(), "nyc-311", batch)
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if result.Invalid != 4 || result.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Report == nil {
		t.Fatalf("expected a failure report")
	}
	if result.Report.Count != 4 {
		t.Fatalf("expected report count 4, got %d", result.Report.Count)
	}
	// Samples are capped at three representative failures.
	if len(result.Report.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(result.Report.Samples))
	}
	if result.Report.Samples[0].SourceItemID != "bad-1" {
		t.Fatalf("expected traceable sample id, got %q", result.Report.Samples[0].SourceItemID)
	}
	if len(store.reports) != 1 {
		t.Fatalf("expected failure report persisted, got %d", len(store.reports))
	}
}

func TestIngestBatchCatchesIntraBatchDuplicates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(t, store)

	batch := []json.RawMessage{
		payload(t, map[string]any{
			"source":         "news-a",
			"source_item_id": "a-1",
			"title":          "Subway flooding closes stations across Queens",
			"locator":        "https://news-a.example/queens-flooding",
		}),
		payload(t, map[string]any{
			"source":         "news-b",
			"source_item_id": "b-1",
			"title":          "Subway flooding closes stations in Queens",
			"locator":        "https://news-b.example/flooding-coverage",
		}),
	}

	result, err := service.IngestBatch(context.Background(), "wire", batch)
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if result.Duplicates != 1 || result.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.items) != 1 || store.items[0].SourceItemID != "a-1" {
		t.Fatalf("expected only the first item stored, got %+v", store.items)
	}
}

func TestIngestBatchAbsorbedInsertCountsAsDuplicate(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rejectKeys: map[string]bool{"nyc-311/item-1": true}}
	service := newTestService(t, store)

	result, err := service.IngestBatch(context.Background(), "nyc-311", []json.RawMessage{
		payload(t, map[string]any{"source_item_id": "item-1"}),
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if result.Accepted != 0 || result.Duplicates != 1 {
		t.Fatalf("expected absorbed insert counted as duplicate, got %+v", result)
	}
	if store.insertCalls != 1 {
		t.Fatalf("expected one insert attempt, got %d", store.insertCalls)
	}
}

func TestIngestBatchParsesTimestamps(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	service := newTestService(t, store)

	_, err := service.IngestBatch(context.Background(), "nyc-311", []json.RawMessage{
		payload(t, map[string]any{
			"created_at": "2025-06-02T07:15:00Z",
			"expires_at": "2025-06-02T19:00:00Z",
			"windows":    []string{"morning", "midday"},
		}),
	})
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected 1 stored item, got %d", len(store.items))
	}
	item := store.items[0]
	if want := time.Date(2025, 6, 2, 7, 15, 0, 0, time.UTC); !item.CreatedAt.Equal(want) {
		t.Fatalf("unexpected created_at: %v", item.CreatedAt)
	}
	if item.ExpiresAt == nil || !item.ExpiresAt.Equal(time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expires_at: %v", item.ExpiresAt)
	}
	if len(item.Windows) != 2 {
		t.Fatalf("expected windows carried through, got %v", item.Windows)
	}
}
