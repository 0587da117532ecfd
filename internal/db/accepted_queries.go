package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/dedup"
	"citypulse.nyc/pulse/internal/ingest"
	"citypulse.nyc/pulse/internal/router"
)

// AcceptedStore persists accepted content items. It backs both the dedup
// cascade's lookback reads and ingest's writes.
type AcceptedStore struct {
	pool *Pool
}

func NewAcceptedStore(pool *Pool) *AcceptedStore {
	return &AcceptedStore{pool: pool}
}

// ListRecent returns the accepted items ingested since cutoff, excluding the
// given source when non-empty.
func (s *AcceptedStore) ListRecent(ctx context.Context, cutoff time.Time, excludeSource string) ([]dedup.Record, error) {
	const q = `
SELECT
	i.item_uuid::text,
	i.source,
	COALESCE(i.locator, ''),
	COALESCE(i.locator_signature, ''),
	i.title,
	COALESCE(i.fingerprint, '')
FROM pulse.accepted_items i
WHERE i.ingested_at >= $1
  AND ($2 = '' OR i.source <> $2)
ORDER BY i.ingested_at DESC, i.item_id DESC
`

	rows, err := s.pool.Query(ctx, q, cutoff.UTC(), strings.TrimSpace(excludeSource))
	if err != nil {
		return nil, fmt.Errorf("query recent accepted items: %w", err)
	}
	defer rows.Close()

	records := make([]dedup.Record, 0, 64)
	for rows.Next() {
		var record dedup.Record
		if err := rows.Scan(
			&record.ID,
			&record.Source,
			&record.Locator,
			&record.Signature,
			&record.Title,
			&record.Fingerprint,
		); err != nil {
			return nil, fmt.Errorf("scan accepted item row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accepted item rows: %w", err)
	}

	return records, nil
}

// Insert writes one accepted item. Both the (source, source_item_id) pair and
// the locator signature are unique; a conflict on either absorbs the insert
// and reports false.
func (s *AcceptedStore) Insert(ctx context.Context, item ingest.Item) (bool, error) {
	windows, err := marshalNullable(item.Windows)
	if err != nil {
		return false, fmt.Errorf("marshal windows: %w", err)
	}
	metadata, err := marshalNullable(item.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
INSERT INTO pulse.accepted_items (
	source, source_item_id, title, content_type, priority,
	locator, locator_signature, fingerprint, excerpt,
	windows, metadata, created_at, expires_at, ingested_at
)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13, now())
ON CONFLICT DO NOTHING
`

	tag, err := s.pool.Exec(ctx, q,
		item.Source,
		item.SourceItemID,
		item.Title,
		item.ContentType,
		item.Priority,
		item.Locator,
		item.Signature,
		item.Fingerprint,
		item.Excerpt,
		windows,
		metadata,
		item.CreatedAt.UTC(),
		item.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert accepted item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFailureReport stores one batch's aggregated validation failures.
func (s *AcceptedStore) RecordFailureReport(ctx context.Context, report ingest.FailureReport) error {
	samples, err := marshalNullable(report.Samples)
	if err != nil {
		return fmt.Errorf("marshal failure samples: %w", err)
	}

	const q = `
INSERT INTO pulse.ingest_failures (source, failure_count, samples, reported_at)
VALUES ($1, $2, $3, $4)
`

	if _, err := s.pool.Exec(ctx, q, report.Source, report.Count, samples, report.ReportedAt.UTC()); err != nil {
		return fmt.Errorf("insert ingest failure report: %w", err)
	}
	return nil
}

// ListRoutable returns accepted items recent enough to be scheduling
// candidates, newest first.
func (s *AcceptedStore) ListRoutable(ctx context.Context, cutoff time.Time, limit int) ([]router.Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	i.item_uuid::text,
	i.source_item_id,
	i.content_type,
	i.priority,
	i.created_at,
	i.expires_at,
	i.windows,
	i.metadata
FROM pulse.accepted_items i
WHERE i.created_at >= $1
  AND (i.expires_at IS NULL OR i.expires_at > now())
ORDER BY i.priority DESC, i.created_at DESC
LIMIT $2
`

	rows, err := s.pool.Query(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query routable items: %w", err)
	}
	defer rows.Close()

	items := make([]router.Item, 0, limit)
	for rows.Next() {
		var (
			item        router.Item
			rawWindows  []byte
			rawMetadata []byte
		)
		if err := rows.Scan(
			&item.ID,
			&item.SourceID,
			&item.Type,
			&item.Priority,
			&item.CreatedAt,
			&item.ExpiresAt,
			&rawWindows,
			&rawMetadata,
		); err != nil {
			return nil, fmt.Errorf("scan routable item row: %w", err)
		}

		if len(rawWindows) > 0 {
			var names []string
			if err := json.Unmarshal(rawWindows, &names); err != nil {
				return nil, fmt.Errorf("decode windows for item %s: %w", item.ID, err)
			}
			for _, name := range names {
				item.Windows = append(item.Windows, catalog.Window(name))
			}
		}
		if len(rawMetadata) > 0 {
			if err := json.Unmarshal(rawMetadata, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for item %s: %w", item.ID, err)
			}
		}

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routable item rows: %w", err)
	}

	return items, nil
}

func marshalNullable(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(value)
}
