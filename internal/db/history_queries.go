package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/router"
)

// HistoryStore is the durable send-history index, plus the per-user advisory
// lock that serializes scheduling cycles.
type HistoryStore struct {
	pool *Pool
}

func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Lookup fetches the history entries for the given dedup keys sent since
// cutoff, keyed by dedup key.
func (s *HistoryStore) Lookup(ctx context.Context, userID string, keys []string, cutoff time.Time) (map[string]router.HistoryEntry, error) {
	if len(keys) == 0 {
		return map[string]router.HistoryEntry{}, nil
	}

	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+2)
	args = append(args, userID)
	for i, key := range keys {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, key)
	}
	args = append(args, cutoff.UTC())

	q := fmt.Sprintf(`
SELECT h.dedup_key, h.content_type, h.window_name, h.sent_at, h.version
FROM pulse.send_history h
WHERE h.user_id = $1
  AND h.dedup_key IN (%s)
  AND h.sent_at >= $%d
`, strings.Join(placeholders, ", "), len(keys)+2)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query send history: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]router.HistoryEntry, len(keys))
	for rows.Next() {
		var (
			entry      router.HistoryEntry
			windowName string
		)
		if err := rows.Scan(&entry.DedupKey, &entry.ContentType, &windowName, &entry.SentAt, &entry.Version); err != nil {
			return nil, fmt.Errorf("scan send history row: %w", err)
		}
		entry.Window = catalog.Window(windowName)
		entries[entry.DedupKey] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate send history rows: %w", err)
	}

	return entries, nil
}

// Record upserts one history entry. A re-send of an existing key replaces the
// row's window and timestamp and bumps version, so history keeps exactly one
// row per (user, dedup key).
func (s *HistoryStore) Record(ctx context.Context, userID string, entry router.HistoryEntry) error {
	const q = `
INSERT INTO pulse.send_history (user_id, dedup_key, content_type, window_name, sent_at, version)
VALUES ($1, $2, $3, $4, $5, 1)
ON CONFLICT (user_id, dedup_key) DO UPDATE
SET content_type = EXCLUDED.content_type,
    window_name  = EXCLUDED.window_name,
    sent_at      = EXCLUDED.sent_at,
    version      = pulse.send_history.version + 1
`

	if _, err := s.pool.Exec(ctx, q, userID, entry.DedupKey, entry.ContentType, string(entry.Window), entry.SentAt.UTC()); err != nil {
		return fmt.Errorf("upsert send history entry: %w", err)
	}
	return nil
}

// WithUserLock runs fn while holding a transaction-scoped advisory lock on
// the user id, so concurrent scheduling cycles for the same user serialize
// instead of acting on stale history.
func (s *HistoryStore) WithUserLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin lock transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("acquire user cycle lock: %w", err)
	}

	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lock transaction: %w", err)
	}
	return nil
}
