package router

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
)

const (
	middayScarcityPriorityFloor   = 70
	overflowTimeSensitivePriority = 60
)

// BuildSlotContent applies the window's capacity and minimum-threshold rules
// to the include decisions of a routing pass. Kept and Dropped always
// partition the input items; Deferred and Immediate additionally record the
// re-disposition of overflow items that were not simply discarded.
func (r *Router) BuildSlotContent(included []Decision, window catalog.Window, now time.Time) SlotBucket {
	bucket := SlotBucket{Window: window, ShouldSend: true}
	policy, ok := r.catalog.Window(window)
	if !ok {
		bucket.ShouldSend = false
		bucket.Reason = fmt.Sprintf("unknown window %q", window)
		for _, d := range included {
			bucket.Dropped = append(bucket.Dropped, d.Item)
		}
		return bucket
	}

	items := make([]Item, 0, len(included))
	for _, d := range included {
		items = append(items, d.Item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority > items[j].Priority })

	urgent := make([]Item, 0, len(items))
	rest := make([]Item, 0, len(items))
	for _, item := range items {
		if r.catalog.Resolve(item.Type).Urgency == catalog.UrgencyUrgent {
			urgent = append(urgent, item)
		} else {
			rest = append(rest, item)
		}
	}

	// Urgent items claim slots first. Urgent overflow is never dropped: it
	// is re-dispatched as a separate immediate send.
	for _, item := range urgent {
		if len(bucket.Kept) < policy.Capacity {
			bucket.Kept = append(bucket.Kept, item)
			continue
		}
		bucket.Dropped = append(bucket.Dropped, item)
		bucket.Immediate = append(bucket.Immediate, item)
	}

	for _, item := range rest {
		if len(bucket.Kept) < policy.Capacity {
			bucket.Kept = append(bucket.Kept, item)
			continue
		}
		bucket.Dropped = append(bucket.Dropped, item)
		if deferred, ok := r.deferOverflow(item, window, now); ok {
			bucket.Deferred = append(bucket.Deferred, deferred)
		}
	}

	if len(bucket.Kept) >= policy.Minimum {
		return bucket
	}

	// Below minimum: a scarcity override may still justify the send.
	if override, reason := r.scarcityOverride(window, bucket.Kept); override {
		bucket.Reason = reason
		return bucket
	}

	bucket.ShouldSend = false
	if window == catalog.WindowMidday && len(bucket.Kept) > 0 {
		// Midday content below the bar rolls into the evening digest.
		bucket.Reason = "below midday minimum; deferring to evening"
		evening := r.catalog.NextOccurrence(catalog.WindowEvening, now, r.loc)
		for _, item := range bucket.Kept {
			deferUntil := evening
			bucket.Deferred = append(bucket.Deferred, Decision{
				Item:       item,
				Action:     ActionDefer,
				Window:     catalog.WindowEvening,
				Reason:     "midday scarcity: deferred to evening",
				DeferUntil: &deferUntil,
			})
		}
	} else {
		bucket.Reason = fmt.Sprintf("only %d of minimum %d items for %s window", len(bucket.Kept), policy.Minimum, window)
	}

	bucket.Dropped = append(bucket.Dropped, bucket.Kept...)
	bucket.Kept = nil
	return bucket
}

func (r *Router) scarcityOverride(window catalog.Window, kept []Item) (bool, string) {
	switch window {
	case catalog.WindowMorning:
		// Parking status is the one thing morning readers open the digest for.
		for _, item := range kept {
			if strings.HasPrefix(strings.ToLower(item.Type), "parking") {
				return true, "morning scarcity override: parking item present"
			}
		}
	case catalog.WindowEvening:
		for _, item := range kept {
			if strings.EqualFold(item.Type, "next_day_preview") {
				return true, "evening scarcity override: next-day preview present"
			}
		}
	case catalog.WindowMidday:
		for _, item := range kept {
			if item.Priority >= middayScarcityPriorityFloor {
				return true, "midday scarcity override: high-priority item present"
			}
		}
	}
	return false, ""
}

func (r *Router) deferOverflow(item Item, window catalog.Window, now time.Time) (Decision, bool) {
	entry := r.catalog.Resolve(item.Type)
	switch entry.Urgency {
	case catalog.UrgencyBatchable, catalog.UrgencyEvergreen:
		next := r.catalog.NextWindow(window)
		deferUntil := r.catalog.NextOccurrence(next, now, r.loc)
		return Decision{
			Item:       item,
			Action:     ActionDefer,
			Window:     next,
			Reason:     "window at capacity; deferred to next window",
			DeferUntil: &deferUntil,
		}, true
	case catalog.UrgencyTimeSensitive:
		if item.Priority < overflowTimeSensitivePriority {
			return Decision{}, false
		}
		next := r.catalog.NextWindow(window)
		deferUntil := r.catalog.NextOccurrence(next, now, r.loc)
		return Decision{
			Item:       item,
			Action:     ActionDefer,
			Window:     next,
			Reason:     "window at capacity; high-priority time-sensitive item deferred",
			DeferUntil: &deferUntil,
		}, true
	default:
		return Decision{}, false
	}
}
