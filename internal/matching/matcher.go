package matching

import (
	"strings"

	"citypulse.nyc/pulse/internal/catalog"
)

// MatchesPreference decides whether an event is relevant to one user's
// preference, dispatching on the topic's declared rule kind.
func (s *Scheduler) MatchesPreference(event Event, pref Preference) bool {
	if !pref.Enabled {
		return false
	}

	switch s.catalog.TopicRuleFor(event.Topic) {
	case catalog.TopicRuleRoute:
		return matchRoutes(event, pref.Settings)
	case catalog.TopicRuleBracket:
		return matchBracket(event, pref.Settings)
	case catalog.TopicRuleOptOut:
		return matchOptOut(event, pref.Settings)
	case catalog.TopicRuleUniversal:
		return true
	case catalog.TopicRuleArea:
		return matchAreas(event, pref.Settings)
	default:
		// New topics match everyone with the topic enabled until a rule is
		// declared for them.
		return true
	}
}

// matchRoutes requires a non-empty intersection between the event's affected
// routes and the user's monitored routes. Either side empty means relevance
// cannot be determined, so no match.
func matchRoutes(event Event, settings Settings) bool {
	affected := metadataStrings(event.Metadata, "routes")
	if len(affected) == 0 {
		return false
	}
	route, ok := settings.(*RouteSettings)
	if !ok || len(route.Routes) == 0 {
		return false
	}

	monitored := make(map[string]struct{}, len(route.Routes))
	for _, r := range route.Routes {
		monitored[normalizeToken(r)] = struct{}{}
	}
	for _, r := range affected {
		if _, found := monitored[normalizeToken(r)]; found {
			return true
		}
	}
	return false
}

// matchBracket fails open in both directions: an event without eligible
// brackets matches everyone, and a user without a bracket preference matches
// every event.
func matchBracket(event Event, settings Settings) bool {
	eligible := metadataStrings(event.Metadata, "brackets")
	if len(eligible) == 0 {
		return true
	}
	bracket, ok := settings.(*BracketSettings)
	if !ok || strings.TrimSpace(bracket.Bracket) == "" {
		return true
	}

	want := normalizeToken(bracket.Bracket)
	for _, b := range eligible {
		if normalizeToken(b) == want {
			return true
		}
	}
	return false
}

// matchOptOut matches unless the user has explicitly disabled this event's
// sub-alert.
func matchOptOut(event Event, settings Settings) bool {
	optOut, ok := settings.(*OptOutSettings)
	if !ok || len(optOut.Disabled) == 0 {
		return true
	}
	sub := normalizeToken(metadataString(event.Metadata, "sub_alert"))
	if sub == "" {
		return true
	}
	return !optOut.Disabled[sub]
}

// matchAreas: a citywide event (no target areas) matches everyone; a targeted
// event requires a matching user area, and a user with no area preference is
// not matched to avoid noise.
func matchAreas(event Event, settings Settings) bool {
	if len(event.Areas) == 0 {
		return true
	}
	area, ok := settings.(*AreaSettings)
	if !ok || len(area.Areas) == 0 {
		return false
	}

	wanted := make(map[string]struct{}, len(area.Areas))
	for _, a := range area.Areas {
		wanted[normalizeToken(a)] = struct{}{}
	}
	for _, a := range event.Areas {
		if _, found := wanted[normalizeToken(a)]; found {
			return true
		}
	}
	return false
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}

// metadataStrings reads a string list out of event metadata, tolerating both
// []string and the []any that json decoding produces.
func metadataStrings(metadata map[string]any, key string) []string {
	if metadata == nil {
		return nil
	}
	switch value := metadata[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
