package db

import (
	"context"
	"fmt"
	"time"
)

// PipelineStats is the aggregate view served by the stats endpoint and the
// health CLI command.
type PipelineStats struct {
	AcceptedItems      int64      `json:"accepted_items"`
	SendHistoryEntries int64      `json:"send_history_entries"`
	PendingTasks       int64      `json:"pending_tasks"`
	Subscribers        int64      `json:"subscribers"`
	IngestFailures     int64      `json:"ingest_failures"`
	LatestIngestAt     *time.Time `json:"latest_ingest_at,omitempty"`
}

func (p *Pool) PipelineStats(ctx context.Context) (PipelineStats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM pulse.accepted_items),
	(SELECT COUNT(*) FROM pulse.send_history),
	(SELECT COUNT(*) FROM pulse.delivery_tasks WHERE status = 'pending'),
	(SELECT COUNT(*) FROM pulse.subscribers),
	(SELECT COUNT(*) FROM pulse.ingest_failures),
	(SELECT MAX(ingested_at) FROM pulse.accepted_items)
`

	var stats PipelineStats
	if err := p.QueryRow(ctx, q).Scan(
		&stats.AcceptedItems,
		&stats.SendHistoryEntries,
		&stats.PendingTasks,
		&stats.Subscribers,
		&stats.IngestFailures,
		&stats.LatestIngestAt,
	); err != nil {
		return PipelineStats{}, fmt.Errorf("query pipeline stats: %w", err)
	}
	return stats, nil
}
