package dedup

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

var (
	// Path segments that vary per publisher for the same underlying story.
	dateSegmentPattern = regexp.MustCompile(`^\d{4}$|^\d{1,2}$|^\d{4}-\d{2}-\d{2}$`)
	numericSuffix      = regexp.MustCompile(`-\d+$`)
	longDigitRun       = regexp.MustCompile(`\d{4,}`)
)

// Signature reduces a locator to a canonical form that survives the
// per-publisher variation in dates, numeric IDs, and tracking parameters.
// A malformed locator yields an empty signature; callers skip the stage.
func Signature(locator string) string {
	trimmed := strings.TrimSpace(strings.ToLower(locator))
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")

	path := parsed.EscapedPath()
	path = strings.TrimSuffix(path, "/")

	segments := strings.Split(path, "/")
	kept := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if dateSegmentPattern.MatchString(segment) {
			continue
		}
		segment = strings.TrimSuffix(segment, ".html")
		segment = strings.TrimSuffix(segment, ".htm")
		segment = numericSuffix.ReplaceAllString(segment, "")
		segment = longDigitRun.ReplaceAllString(segment, "")
		if segment == "" {
			continue
		}
		kept = append(kept, segment)
	}

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}

	signature := host + "/" + strings.Join(kept, "/")
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			pairs = append(pairs, key+"="+strings.Join(values, ","))
		}
		signature += "?" + strings.Join(pairs, "&")
	}
	return signature
}
