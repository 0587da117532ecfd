package db

import (
	"context"
	"fmt"

	"citypulse.nyc/pulse/internal/matching"
)

// TaskStore persists delivery tasks.
type TaskStore struct {
	pool *Pool
}

func NewTaskStore(pool *Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Enqueue inserts one delivery task. A duplicate (user, event, channel) is
// absorbed by the unique index and reports false.
func (s *TaskStore) Enqueue(ctx context.Context, task matching.DeliveryTask) (bool, error) {
	const q = `
INSERT INTO pulse.delivery_tasks (user_id, event_id, channel, scheduled_for)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, event_id, channel) DO NOTHING
`

	tag, err := s.pool.Exec(ctx, q, task.UserID, task.EventID, string(task.Channel), task.ScheduledFor.UTC())
	if err != nil {
		return false, fmt.Errorf("insert delivery task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PendingTaskCount returns the number of tasks not yet delivered, for the
// stats endpoint.
func (s *TaskStore) PendingTaskCount(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM pulse.delivery_tasks WHERE status = 'pending'`

	var count int64
	if err := s.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending delivery tasks: %w", err)
	}
	return count, nil
}
