package router

import (
	"context"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
)

type Action string

const (
	ActionInclude       Action = "include"
	ActionDefer         Action = "defer"
	ActionSkip          Action = "skip"
	ActionSendImmediate Action = "send_immediate"
)

// Item is a schedulable piece of digest content.
type Item struct {
	ID        string
	Type      string
	Priority  int
	CreatedAt time.Time
	ExpiresAt *time.Time
	// Windows overrides the type's default preferred windows when non-empty.
	Windows  []catalog.Window
	SourceID string
	Metadata map[string]any
}

// Decision is the outcome of evaluating one item against a window. It is
// ephemeral: nothing persists a Decision beyond the cycle that produced it.
type Decision struct {
	Item       Item
	Action     Action
	Window     catalog.Window
	Reason     string
	DeferUntil *time.Time
}

// RoutedSet partitions the decisions of one routing pass.
type RoutedSet struct {
	Include   []Decision
	Defer     []Decision
	Skip      []Decision
	Immediate []Decision
}

// SlotBucket is the materialized content of one (user, window) pair after
// capacity and minimum-threshold rules.
type SlotBucket struct {
	Window     catalog.Window
	Kept       []Item
	Dropped    []Item
	Deferred   []Decision
	Immediate  []Item
	ShouldSend bool
	Reason     string
}

// HistoryEntry records that a dedup key was delivered in a window.
type HistoryEntry struct {
	DedupKey    string
	ContentType string
	Window      catalog.Window
	SentAt      time.Time
	Version     int
}

// HistoryStore is the durable send-history index. Record is the only
// mutation path; a qualifying re-send increments the stored version.
type HistoryStore interface {
	Lookup(ctx context.Context, userID string, keys []string, cutoff time.Time) (map[string]HistoryEntry, error)
	Record(ctx context.Context, userID string, entry HistoryEntry) error
}

// CycleLocker serializes scheduling cycles per user so two concurrent cycles
// cannot both include the same item based on stale history reads.
type CycleLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(context.Context) error) error
}
