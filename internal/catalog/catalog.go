// Package catalog holds the fixed routing configuration: delivery windows,
// urgency classes, and the content-type table. The catalog is loaded once at
// startup from an embedded file so that default policy is auditable in one
// place instead of scattered across call sites.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalogYAML []byte

type Window string

const (
	WindowMorning Window = "morning"
	WindowMidday  Window = "midday"
	WindowEvening Window = "evening"
)

type UrgencyClass string

const (
	UrgencyUrgent        UrgencyClass = "urgent"
	UrgencyTimeSensitive UrgencyClass = "time_sensitive"
	UrgencyEvergreen     UrgencyClass = "evergreen"
	UrgencyBatchable     UrgencyClass = "batchable"
)

type TopicRule string

const (
	TopicRuleRoute     TopicRule = "route"
	TopicRuleBracket   TopicRule = "bracket"
	TopicRuleOptOut    TopicRule = "opt_out"
	TopicRuleUniversal TopicRule = "universal"
	TopicRuleArea      TopicRule = "area"
	TopicRuleUnknown   TopicRule = ""
)

// WindowPolicy is the per-window delivery budget.
type WindowPolicy struct {
	Name     Window
	Clock    string // "HH:MM" local time
	Capacity int
	Minimum  int
}

// ContentType is one row of the content-type table.
type ContentType struct {
	Slug             string
	Urgency          UrgencyClass
	PreferredWindows []Window
	DefaultPriority  int
	InverseOf        string
}

type Catalog struct {
	windows   []WindowPolicy
	byWindow  map[Window]WindowPolicy
	types     map[string]ContentType
	freshness map[UrgencyClass]time.Duration
	topics    map[string]TopicRule
	fallback  ContentType
}

type yamlWindow struct {
	Name     string `yaml:"name"`
	Clock    string `yaml:"clock"`
	Capacity int    `yaml:"capacity"`
	Minimum  int    `yaml:"minimum"`
}

type yamlContentType struct {
	Slug      string   `yaml:"slug"`
	Urgency   string   `yaml:"urgency"`
	Windows   []string `yaml:"windows"`
	Priority  int      `yaml:"priority"`
	InverseOf string   `yaml:"inverse_of"`
}

type yamlTopic struct {
	Slug string `yaml:"slug"`
	Rule string `yaml:"rule"`
}

type yamlCatalog struct {
	Windows      []yamlWindow      `yaml:"windows"`
	Urgency      map[string]string `yaml:"urgency"`
	ContentTypes []yamlContentType `yaml:"content_types"`
	Topics       []yamlTopic       `yaml:"topics"`
}

// Load parses and validates the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embeddedCatalogYAML)
}

// Parse builds a catalog from raw YAML. Exposed for tests.
func Parse(raw []byte) (*Catalog, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}

	if len(doc.Windows) == 0 {
		return nil, fmt.Errorf("catalog defines no windows")
	}

	c := &Catalog{
		byWindow:  make(map[Window]WindowPolicy, len(doc.Windows)),
		types:     make(map[string]ContentType, len(doc.ContentTypes)),
		freshness: make(map[UrgencyClass]time.Duration, len(doc.Urgency)),
		topics:    make(map[string]TopicRule, len(doc.Topics)),
	}

	for _, w := range doc.Windows {
		name := Window(strings.TrimSpace(strings.ToLower(w.Name)))
		if name == "" {
			return nil, fmt.Errorf("window with empty name")
		}
		if _, exists := c.byWindow[name]; exists {
			return nil, fmt.Errorf("duplicate window %q", name)
		}
		if _, err := parseClock(w.Clock); err != nil {
			return nil, fmt.Errorf("window %q: %w", name, err)
		}
		if w.Capacity < 1 {
			return nil, fmt.Errorf("window %q: capacity must be >= 1", name)
		}
		if w.Minimum < 0 || w.Minimum > w.Capacity {
			return nil, fmt.Errorf("window %q: minimum must be in [0, capacity]", name)
		}
		policy := WindowPolicy{
			Name:     name,
			Clock:    strings.TrimSpace(w.Clock),
			Capacity: w.Capacity,
			Minimum:  w.Minimum,
		}
		c.windows = append(c.windows, policy)
		c.byWindow[name] = policy
	}

	for rawClass, rawDur := range doc.Urgency {
		class := UrgencyClass(strings.TrimSpace(strings.ToLower(rawClass)))
		dur, err := time.ParseDuration(strings.TrimSpace(rawDur))
		if err != nil {
			return nil, fmt.Errorf("urgency %q: %w", class, err)
		}
		if dur <= 0 {
			return nil, fmt.Errorf("urgency %q: freshness must be positive", class)
		}
		c.freshness[class] = dur
	}
	for _, required := range []UrgencyClass{UrgencyUrgent, UrgencyTimeSensitive, UrgencyEvergreen, UrgencyBatchable} {
		if _, ok := c.freshness[required]; !ok {
			return nil, fmt.Errorf("urgency %q has no freshness window", required)
		}
	}

	for _, t := range doc.ContentTypes {
		slug := strings.TrimSpace(strings.ToLower(t.Slug))
		if slug == "" {
			return nil, fmt.Errorf("content type with empty slug")
		}
		if _, exists := c.types[slug]; exists {
			return nil, fmt.Errorf("duplicate content type %q", slug)
		}
		class := UrgencyClass(strings.TrimSpace(strings.ToLower(t.Urgency)))
		if _, ok := c.freshness[class]; !ok {
			return nil, fmt.Errorf("content type %q: unknown urgency %q", slug, class)
		}
		if t.Priority < 0 || t.Priority > 100 {
			return nil, fmt.Errorf("content type %q: priority must be in [0,100]", slug)
		}
		if len(t.Windows) == 0 {
			return nil, fmt.Errorf("content type %q: no preferred windows", slug)
		}
		windows := make([]Window, 0, len(t.Windows))
		for _, rawWindow := range t.Windows {
			w := Window(strings.TrimSpace(strings.ToLower(rawWindow)))
			if _, ok := c.byWindow[w]; !ok {
				return nil, fmt.Errorf("content type %q: unknown window %q", slug, w)
			}
			windows = append(windows, w)
		}
		c.types[slug] = ContentType{
			Slug:             slug,
			Urgency:          class,
			PreferredWindows: windows,
			DefaultPriority:  t.Priority,
			InverseOf:        strings.TrimSpace(strings.ToLower(t.InverseOf)),
		}
	}

	for slug, t := range c.types {
		if t.InverseOf == "" {
			continue
		}
		other, ok := c.types[t.InverseOf]
		if !ok {
			return nil, fmt.Errorf("content type %q: inverse_of references unknown type %q", slug, t.InverseOf)
		}
		if other.InverseOf != slug {
			return nil, fmt.Errorf("content type %q: inverse_of relation with %q is not symmetric", slug, t.InverseOf)
		}
	}

	for _, t := range doc.Topics {
		slug := strings.TrimSpace(strings.ToLower(t.Slug))
		if slug == "" {
			return nil, fmt.Errorf("topic with empty slug")
		}
		rule := TopicRule(strings.TrimSpace(strings.ToLower(t.Rule)))
		switch rule {
		case TopicRuleRoute, TopicRuleBracket, TopicRuleOptOut, TopicRuleUniversal, TopicRuleArea:
		default:
			return nil, fmt.Errorf("topic %q: unknown rule %q", slug, rule)
		}
		if _, exists := c.topics[slug]; exists {
			return nil, fmt.Errorf("duplicate topic %q", slug)
		}
		c.topics[slug] = rule
	}

	// Unknown content types resolve to this entry so newly introduced types
	// route somewhere sensible without a code change.
	c.fallback = ContentType{
		Slug:             "",
		Urgency:          UrgencyEvergreen,
		PreferredWindows: append([]Window(nil), c.WindowOrder()...),
		DefaultPriority:  50,
	}

	return c, nil
}

// Resolve returns the catalog entry for a content-type slug, falling back to
// the evergreen default for unknown slugs.
func (c *Catalog) Resolve(slug string) ContentType {
	normalized := strings.TrimSpace(strings.ToLower(slug))
	if t, ok := c.types[normalized]; ok {
		return t
	}
	fallback := c.fallback
	fallback.Slug = normalized
	return fallback
}

// Known reports whether the slug is declared in the catalog.
func (c *Catalog) Known(slug string) bool {
	_, ok := c.types[strings.TrimSpace(strings.ToLower(slug))]
	return ok
}

// Freshness returns the maximum eligible age for an urgency class.
func (c *Catalog) Freshness(class UrgencyClass) time.Duration {
	if dur, ok := c.freshness[class]; ok {
		return dur
	}
	return c.freshness[UrgencyEvergreen]
}

// Window returns the delivery policy for a window name.
func (c *Catalog) Window(name Window) (WindowPolicy, bool) {
	policy, ok := c.byWindow[name]
	return policy, ok
}

// WindowOrder returns the windows in daily delivery order.
func (c *Catalog) WindowOrder() []Window {
	order := make([]Window, 0, len(c.windows))
	for _, w := range c.windows {
		order = append(order, w.Name)
	}
	return order
}

// NextWindow returns the window immediately after the given one, wrapping
// from the last window of the day back to the first.
func (c *Catalog) NextWindow(current Window) Window {
	for i, w := range c.windows {
		if w.Name == current {
			return c.windows[(i+1)%len(c.windows)].Name
		}
	}
	return c.windows[0].Name
}

// NextOccurrence returns the next wall-clock time at which the window opens,
// today if its clock time has not passed, otherwise tomorrow.
func (c *Catalog) NextOccurrence(window Window, now time.Time, loc *time.Location) time.Time {
	policy, ok := c.byWindow[window]
	if !ok {
		policy = c.windows[0]
	}
	if loc == nil {
		loc = time.UTC
	}

	minutes, err := parseClock(policy.Clock)
	if err != nil {
		minutes = 0
	}

	local := now.In(loc)
	occurrence := time.Date(local.Year(), local.Month(), local.Day(), minutes/60, minutes%60, 0, 0, loc)
	if !occurrence.After(local) {
		occurrence = occurrence.AddDate(0, 0, 1)
	}
	return occurrence.UTC()
}

// Inverse returns the declared inverse content type for a slug, if any.
func (c *Catalog) Inverse(slug string) (string, bool) {
	t, ok := c.types[strings.TrimSpace(strings.ToLower(slug))]
	if !ok || t.InverseOf == "" {
		return "", false
	}
	return t.InverseOf, true
}

// TopicRuleFor returns the matching rule kind for a topic slug.
// Unknown topics return TopicRuleUnknown, which matchers treat as match-all.
func (c *Catalog) TopicRuleFor(slug string) TopicRule {
	if rule, ok := c.topics[strings.TrimSpace(strings.ToLower(slug))]; ok {
		return rule
	}
	return TopicRuleUnknown
}

// ContentTypes returns all declared entries sorted by slug, for audit output.
func (c *Catalog) ContentTypes() []ContentType {
	out := make([]ContentType, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func parseClock(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse("15:04", trimmed)
	if err != nil {
		return 0, fmt.Errorf("clock %q must be HH:MM: %w", raw, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
