package catalog

import (
	"testing"
	"time"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	order := cat.WindowOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(order))
	}
	if order[0] != WindowMorning || order[1] != WindowMidday || order[2] != WindowEvening {
		t.Fatalf("unexpected window order: %v", order)
	}

	morning, ok := cat.Window(WindowMorning)
	if !ok {
		t.Fatalf("expected morning window policy")
	}
	if morning.Capacity != 8 || morning.Minimum != 2 {
		t.Fatalf("unexpected morning policy: %+v", morning)
	}

	if got := cat.Freshness(UrgencyUrgent); got != time.Hour {
		t.Fatalf("expected 1h urgent freshness, got %s", got)
	}
	if got := cat.Freshness(UrgencyBatchable); got != 72*time.Hour {
		t.Fatalf("expected 72h batchable freshness, got %s", got)
	}
}

func TestResolveFallsBackForUnknownType(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	entry := cat.Resolve("brand_new_type")
	if entry.Urgency != UrgencyEvergreen {
		t.Fatalf("expected evergreen fallback, got %s", entry.Urgency)
	}
	if entry.DefaultPriority != 50 {
		t.Fatalf("expected default priority 50, got %d", entry.DefaultPriority)
	}
	if len(entry.PreferredWindows) != 3 {
		t.Fatalf("expected all windows in fallback, got %v", entry.PreferredWindows)
	}
	if cat.Known("brand_new_type") {
		t.Fatalf("did not expect unknown type to be known")
	}
}

func TestInverseRelation(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	inverse, ok := cat.Inverse("transit_delay")
	if !ok || inverse != "transit_restored" {
		t.Fatalf("expected transit_restored inverse, got %q ok=%t", inverse, ok)
	}
	inverse, ok = cat.Inverse("transit_restored")
	if !ok || inverse != "transit_delay" {
		t.Fatalf("expected transit_delay inverse, got %q ok=%t", inverse, ok)
	}
	if _, ok := cat.Inverse("weather_severe"); ok {
		t.Fatalf("did not expect inverse for weather_severe")
	}
}

func TestNextWindowWraps(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	if got := cat.NextWindow(WindowMorning); got != WindowMidday {
		t.Fatalf("expected midday after morning, got %s", got)
	}
	if got := cat.NextWindow(WindowEvening); got != WindowMorning {
		t.Fatalf("expected morning after evening, got %s", got)
	}
}

func TestNextOccurrenceTodayOrTomorrow(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 09:00 local: midday (12:00) is still today.
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	occurrence := cat.NextOccurrence(WindowMidday, now.UTC(), loc)
	local := occurrence.In(loc)
	if local.Day() != 2 || local.Hour() != 12 {
		t.Fatalf("expected midday today, got %s", local)
	}

	// 13:00 local: midday already passed, next is tomorrow.
	now = time.Date(2025, 6, 2, 13, 0, 0, 0, loc)
	occurrence = cat.NextOccurrence(WindowMidday, now.UTC(), loc)
	local = occurrence.In(loc)
	if local.Day() != 3 || local.Hour() != 12 {
		t.Fatalf("expected midday tomorrow, got %s", local)
	}
}

func TestTopicRules(t *testing.T) {
	t.Parallel()

	cat, err := Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	cases := map[string]TopicRule{
		"transit_alerts":      TopicRuleRoute,
		"benefits_programs":   TopicRuleBracket,
		"parking_alerts":      TopicRuleOptOut,
		"severe_weather":      TopicRuleUniversal,
		"neighborhood_events": TopicRuleArea,
		"unknown_topic":       TopicRuleUnknown,
	}
	for topic, want := range cases {
		if got := cat.TopicRuleFor(topic); got != want {
			t.Fatalf("topic %s: expected rule %q, got %q", topic, want, got)
		}
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad clock": `
windows:
  - name: morning
    clock: "7am"
    capacity: 4
    minimum: 1
urgency:
  urgent: 1h
  time_sensitive: 6h
  evergreen: 24h
  batchable: 72h
`,
		"minimum above capacity": `
windows:
  - name: morning
    clock: "07:00"
    capacity: 2
    minimum: 3
urgency:
  urgent: 1h
  time_sensitive: 6h
  evergreen: 24h
  batchable: 72h
`,
		"missing urgency class": `
windows:
  - name: morning
    clock: "07:00"
    capacity: 4
    minimum: 1
urgency:
  urgent: 1h
`,
		"asymmetric inverse": `
windows:
  - name: morning
    clock: "07:00"
    capacity: 4
    minimum: 1
urgency:
  urgent: 1h
  time_sensitive: 6h
  evergreen: 24h
  batchable: 72h
content_types:
  - slug: outage
    urgency: urgent
    windows: [morning]
    priority: 80
    inverse_of: restored
  - slug: restored
    urgency: time_sensitive
    windows: [morning]
    priority: 60
`,
		"unknown topic rule": `
windows:
  - name: morning
    clock: "07:00"
    capacity: 4
    minimum: 1
urgency:
  urgent: 1h
  time_sensitive: 6h
  evergreen: 24h
  batchable: 72h
topics:
  - slug: alerts
    rule: mystery
`,
	}

	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}
