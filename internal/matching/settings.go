package matching

import (
	"encoding/json"
	"fmt"

	"citypulse.nyc/pulse/internal/catalog"
)

// Settings is the topic-specific half of a preference. Each topic rule kind
// has its own variant, so the matcher dispatches on a concrete type instead
// of probing an untyped map.
type Settings interface {
	Kind() catalog.TopicRule
}

// RouteSettings lists the transit routes a user monitors.
type RouteSettings struct {
	Routes []string `json:"routes"`
}

func (RouteSettings) Kind() catalog.TopicRule { return catalog.TopicRuleRoute }

// BracketSettings carries the user's eligibility bracket, e.g. an income band.
type BracketSettings struct {
	Bracket string `json:"bracket"`
}

func (BracketSettings) Kind() catalog.TopicRule { return catalog.TopicRuleBracket }

// OptOutSettings records which sub-alerts of an opt-out topic the user has
// explicitly disabled. Absence of a key means the sub-alert is on.
type OptOutSettings struct {
	Disabled map[string]bool `json:"disabled"`
}

func (OptOutSettings) Kind() catalog.TopicRule { return catalog.TopicRuleOptOut }

// UniversalSettings is the empty settings of an always-match topic.
type UniversalSettings struct{}

func (UniversalSettings) Kind() catalog.TopicRule { return catalog.TopicRuleUniversal }

// AreaSettings lists the areas a user wants targeted events for.
type AreaSettings struct {
	Areas []string `json:"areas"`
}

func (AreaSettings) Kind() catalog.TopicRule { return catalog.TopicRuleArea }

type settingsEnvelope struct {
	Kind  catalog.TopicRule `json:"kind"`
	Value json.RawMessage   `json:"value,omitempty"`
}

// EncodeSettings serializes a settings variant with a kind tag so the stored
// blob round-trips back to the right concrete type.
func EncodeSettings(s Settings) ([]byte, error) {
	if s == nil {
		return json.Marshal(settingsEnvelope{Kind: catalog.TopicRuleUnknown})
	}
	value, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s settings: %w", s.Kind(), err)
	}
	return json.Marshal(settingsEnvelope{Kind: s.Kind(), Value: value})
}

// DecodeSettings restores a settings variant from its stored form. A nil or
// empty blob decodes to nil settings, which every rule treats as "no
// preference set".
func DecodeSettings(raw []byte) (Settings, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var envelope settingsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode settings envelope: %w", err)
	}

	decode := func(target Settings) (Settings, error) {
		if len(envelope.Value) == 0 {
			return target, nil
		}
		if err := json.Unmarshal(envelope.Value, target); err != nil {
			return nil, fmt.Errorf("decode %s settings: %w", envelope.Kind, err)
		}
		return target, nil
	}

	switch envelope.Kind {
	case catalog.TopicRuleRoute:
		return decode(&RouteSettings{})
	case catalog.TopicRuleBracket:
		return decode(&BracketSettings{})
	case catalog.TopicRuleOptOut:
		return decode(&OptOutSettings{})
	case catalog.TopicRuleUniversal:
		return &UniversalSettings{}, nil
	case catalog.TopicRuleArea:
		return decode(&AreaSettings{})
	case catalog.TopicRuleUnknown:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown settings kind %q", envelope.Kind)
	}
}
