// Package router owns per-user delivery scheduling: it turns accepted
// content items into bounded, deduplicated, priority-ordered window
// assignments, and maintains the send-history index that suppresses
// re-notification.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/catalog"
)

const (
	// Baseline against which a priority escalation is judged for re-sends.
	resendPriorityBaseline = 50
	resendPriorityDelta    = 30
	urgentImmediateFloor   = 80
	urgentResendFloor      = 90

	DefaultHistoryLookback = 24 * time.Hour
)

type Router struct {
	history  HistoryStore
	locker   CycleLocker
	catalog  *catalog.Catalog
	loc      *time.Location
	lookback time.Duration
	logger   zerolog.Logger
}

type Options struct {
	Location        *time.Location
	HistoryLookback time.Duration
}

func New(history HistoryStore, locker CycleLocker, cat *catalog.Catalog, logger zerolog.Logger, opts Options) *Router {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	lookback := opts.HistoryLookback
	if lookback <= 0 {
		lookback = DefaultHistoryLookback
	}
	return &Router{
		history:  history,
		locker:   locker,
		catalog:  cat,
		loc:      loc,
		lookback: lookback,
		logger:   logger,
	}
}

// RouteContent evaluates one item against the current window and time.
func (r *Router) RouteContent(ctx context.Context, userID string, item Item, currentWindow catalog.Window, now time.Time) (Decision, error) {
	if r == nil || r.history == nil {
		return Decision{}, fmt.Errorf("router is not initialized")
	}

	entry := r.catalog.Resolve(item.Type)

	maxAge := r.catalog.Freshness(entry.Urgency)
	if now.Sub(item.CreatedAt) > maxAge {
		return Decision{
			Item:   item,
			Action: ActionSkip,
			Window: currentWindow,
			Reason: fmt.Sprintf("too old: exceeds %s freshness window for %s content", maxAge, entry.Urgency),
		}, nil
	}

	if item.ExpiresAt != nil && item.ExpiresAt.Before(now) {
		return Decision{
			Item:   item,
			Action: ActionSkip,
			Window: currentWindow,
			Reason: "expired",
		}, nil
	}

	// Urgent content at high priority bypasses window assignment and the
	// history check: a genuinely new urgent item is allowed to repeat.
	if entry.Urgency == catalog.UrgencyUrgent && item.Priority >= urgentImmediateFloor {
		return Decision{
			Item:   item,
			Action: ActionSendImmediate,
			Window: currentWindow,
			Reason: "urgent high-priority item",
		}, nil
	}

	prior, found, err := r.lookupHistory(ctx, userID, item, now)
	if err != nil {
		return Decision{}, err
	}
	if found && !r.resendWarranted(item, entry, prior) {
		return Decision{
			Item:   item,
			Action: ActionSkip,
			Window: currentWindow,
			Reason: fmt.Sprintf("already sent in %s window", prior.Window),
		}, nil
	}

	switch entry.Urgency {
	case catalog.UrgencyTimeSensitive, catalog.UrgencyUrgent:
		return r.routeTimeSensitive(item, entry, currentWindow, now), nil
	case catalog.UrgencyEvergreen:
		return Decision{
			Item:   item,
			Action: ActionInclude,
			Window: currentWindow,
			Reason: "evergreen content fits any window",
		}, nil
	case catalog.UrgencyBatchable:
		next := r.catalog.NextWindow(currentWindow)
		deferUntil := r.catalog.NextOccurrence(next, now, r.loc)
		return Decision{
			Item:       item,
			Action:     ActionDefer,
			Window:     next,
			Reason:     fmt.Sprintf("batchable content deferred to %s window", next),
			DeferUntil: &deferUntil,
		}, nil
	default:
		return Decision{
			Item:   item,
			Action: ActionInclude,
			Window: currentWindow,
			Reason: "no routing rule matched; included by default",
		}, nil
	}
}

// RouteMultiple routes a list of items and partitions the decisions.
func (r *Router) RouteMultiple(ctx context.Context, userID string, items []Item, window catalog.Window, now time.Time) (RoutedSet, error) {
	var set RoutedSet
	for _, item := range items {
		decision, err := r.RouteContent(ctx, userID, item, window, now)
		if err != nil {
			return RoutedSet{}, err
		}
		switch decision.Action {
		case ActionInclude:
			set.Include = append(set.Include, decision)
		case ActionDefer:
			set.Defer = append(set.Defer, decision)
		case ActionSendImmediate:
			set.Immediate = append(set.Immediate, decision)
		default:
			set.Skip = append(set.Skip, decision)
		}
	}
	return set, nil
}

// RecordSend writes the send-history entry for an item. This is the only
// mutation path into send history.
func (r *Router) RecordSend(ctx context.Context, userID string, item Item, window catalog.Window, now time.Time) error {
	if r == nil || r.history == nil {
		return fmt.Errorf("router is not initialized")
	}
	key := dedupKey(item)
	if key == "" {
		return fmt.Errorf("item has no identifier to record")
	}
	return r.history.Record(ctx, userID, HistoryEntry{
		DedupKey:    key,
		ContentType: strings.TrimSpace(strings.ToLower(item.Type)),
		Window:      window,
		SentAt:      now.UTC(),
	})
}

// RunCycle executes one full scheduling cycle for a user: route the candidate
// set, build the window's slot content, and record sends for everything kept.
// The cycle runs under the per-user lock so concurrent cycles cannot act on
// stale history.
func (r *Router) RunCycle(ctx context.Context, userID string, items []Item, window catalog.Window, now time.Time) (SlotBucket, error) {
	if r == nil {
		return SlotBucket{}, fmt.Errorf("router is not initialized")
	}

	var bucket SlotBucket
	run := func(ctx context.Context) error {
		set, err := r.RouteMultiple(ctx, userID, items, window, now)
		if err != nil {
			return err
		}

		bucket = r.BuildSlotContent(set.Include, window, now)

		if bucket.ShouldSend {
			for _, item := range bucket.Kept {
				if err := r.RecordSend(ctx, userID, item, window, now); err != nil {
					return fmt.Errorf("record send for %s: %w", item.ID, err)
				}
			}
		}
		for _, decision := range set.Immediate {
			bucket.Immediate = append(bucket.Immediate, decision.Item)
			if err := r.RecordSend(ctx, userID, decision.Item, window, now); err != nil {
				return fmt.Errorf("record immediate send for %s: %w", decision.Item.ID, err)
			}
		}

		r.logger.Info().
			Str("user_id", userID).
			Str("window", string(window)).
			Int("kept", len(bucket.Kept)).
			Int("dropped", len(bucket.Dropped)).
			Int("deferred", len(bucket.Deferred)).
			Int("immediate", len(bucket.Immediate)).
			Bool("should_send", bucket.ShouldSend).
			Msg("scheduling cycle completed")
		return nil
	}

	if r.locker != nil {
		if err := r.locker.WithUserLock(ctx, userID, run); err != nil {
			return SlotBucket{}, err
		}
		return bucket, nil
	}
	if err := run(ctx); err != nil {
		return SlotBucket{}, err
	}
	return bucket, nil
}

func (r *Router) routeTimeSensitive(item Item, entry catalog.ContentType, currentWindow catalog.Window, now time.Time) Decision {
	preferred := item.Windows
	if len(preferred) == 0 {
		preferred = entry.PreferredWindows
	}

	for _, w := range preferred {
		if w == currentWindow {
			return Decision{
				Item:   item,
				Action: ActionInclude,
				Window: currentWindow,
				Reason: fmt.Sprintf("%s window is preferred for %s content", currentWindow, entry.Slug),
			}
		}
	}

	// Defer to the earliest upcoming preferred window, today or tomorrow.
	var target catalog.Window
	var earliest time.Time
	for _, w := range preferred {
		occurrence := r.catalog.NextOccurrence(w, now, r.loc)
		if earliest.IsZero() || occurrence.Before(earliest) {
			earliest = occurrence
			target = w
		}
	}
	if target == "" {
		return Decision{
			Item:   item,
			Action: ActionInclude,
			Window: currentWindow,
			Reason: "no preferred window resolvable; included by default",
		}
	}

	return Decision{
		Item:       item,
		Action:     ActionDefer,
		Window:     target,
		Reason:     fmt.Sprintf("deferred to preferred %s window", target),
		DeferUntil: &earliest,
	}
}

func (r *Router) lookupHistory(ctx context.Context, userID string, item Item, now time.Time) (HistoryEntry, bool, error) {
	keys := make([]string, 0, 2)
	if id := strings.TrimSpace(item.ID); id != "" {
		keys = append(keys, id)
	}
	if sourceID := strings.TrimSpace(item.SourceID); sourceID != "" {
		keys = append(keys, sourceID)
	}
	if len(keys) == 0 {
		return HistoryEntry{}, false, nil
	}

	cutoff := now.Add(-r.lookback)
	entries, err := r.history.Lookup(ctx, userID, keys, cutoff)
	if err != nil {
		return HistoryEntry{}, false, fmt.Errorf("lookup send history: %w", err)
	}

	// Content id takes precedence over source id.
	for _, key := range keys {
		if entry, ok := entries[key]; ok {
			return entry, true, nil
		}
	}
	return HistoryEntry{}, false, nil
}

// resendWarranted decides whether an already-sent story changed enough to
// notify again: a very high-priority urgent update, a declared status flip
// (e.g. outage followed by restoration), or a large priority escalation
// over the fixed baseline.
func (r *Router) resendWarranted(item Item, entry catalog.ContentType, prior HistoryEntry) bool {
	if entry.Urgency == catalog.UrgencyUrgent && item.Priority >= urgentResendFloor {
		return true
	}
	if inverse, ok := r.catalog.Inverse(item.Type); ok && inverse == prior.ContentType {
		return true
	}
	if item.Priority > resendPriorityBaseline+resendPriorityDelta {
		return true
	}
	return false
}

func dedupKey(item Item) string {
	if id := strings.TrimSpace(item.ID); id != "" {
		return id
	}
	return strings.TrimSpace(item.SourceID)
}
