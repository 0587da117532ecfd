package dedup

import (
	"regexp"
	"sort"
	"strings"
)

const minFingerprintLength = 8

// Recognized NYC area names. Multi-word names are matched as substrings of
// the normalized text.
var areaNames = []string{
	"manhattan", "brooklyn", "queens", "bronx", "staten island",
	"harlem", "midtown", "downtown", "uptown", "soho", "tribeca",
	"chelsea", "williamsburg", "bushwick", "astoria", "flushing",
	"long island city", "upper east side", "upper west side",
	"lower east side", "east village", "west village", "financial district",
	"park slope", "bed-stuy", "jackson heights", "coney island", "red hook",
}

// categoryStems maps the stemmed form of a salient event word to its
// canonical category token, so inflection variants ("delay"/"delays"/
// "delayed") and common synonyms of the same status ("closes"/"shut")
// collapse to one token across publishers. Incidental cause words like
// "signal" stay out of the table: two stories about the same delay must not
// diverge because one headline mentions the cause.
var categoryStems = map[string]string{
	"park": "parking", "transit": "transit", "subway": "subway",
	"bus": "bus", "ferry": "ferry",
	"weather": "weather", "storm": "storm", "snow": "snow",
	"flood": "flood", "heat": "heat",
	"outage": "outage", "outag": "outage",
	"power": "power", "water": "water", "gas": "gas", "school": "school",
	"street": "street", "bridge": "bridge", "bridg": "bridge",
	"tunnel": "tunnel", "delay": "delay",
	"suspend": "suspend", "suspension": "suspend",
	"clos": "closure", "close": "closure", "closure": "closure",
	"closur": "closure", "shut": "closure",
	"restor": "restore", "restore": "restore",
	"alternate": "alternate", "emergency": "emergency",
}

var transitLineTokens = map[string]struct{}{
	"a": {}, "b": {}, "c": {}, "d": {}, "e": {}, "f": {}, "g": {},
	"j": {}, "l": {}, "m": {}, "n": {}, "q": {}, "r": {}, "w": {}, "z": {},
	"1": {}, "2": {}, "3": {}, "4": {}, "5": {}, "6": {}, "7": {},
	"sir": {},
}

var digitRun = regexp.MustCompile(`\d+`)

// Fingerprint extracts the salient tokens of a title+excerpt pair: numeric
// quantities, recognized area names, category keywords, and transit line
// references. The sorted, joined token set is a compact signature for "the
// same real-world story covered by different sources". Fingerprints shorter
// than the non-trivial minimum are discarded.
func Fingerprint(title, excerpt string) string {
	text := strings.ToLower(strings.TrimSpace(title + " " + excerpt))
	if text == "" {
		return ""
	}

	tokens := map[string]struct{}{}

	for _, number := range digitRun.FindAllString(text, -1) {
		tokens["n:"+number] = struct{}{}
	}

	for _, area := range areaNames {
		if strings.Contains(text, area) {
			tokens["a:"+strings.ReplaceAll(area, " ", "_")] = struct{}{}
		}
	}

	words := splitWords(text)
	for _, word := range words {
		if canonical, ok := categoryStems[stemWord(word)]; ok {
			tokens["c:"+canonical] = struct{}{}
		}
	}

	for i := 0; i+1 < len(words); i++ {
		next := stemWord(words[i+1])
		if next != "train" && next != "line" {
			continue
		}
		if _, ok := transitLineTokens[words[i]]; ok {
			tokens["l:"+words[i]] = struct{}{}
		}
	}

	if len(tokens) == 0 {
		return ""
	}

	sorted := make([]string, 0, len(tokens))
	for token := range tokens {
		sorted = append(sorted, token)
	}
	sort.Strings(sorted)

	fingerprint := strings.Join(sorted, "|")
	if len(fingerprint) < minFingerprintLength {
		return ""
	}
	return fingerprint
}

// stemWord strips common inflection suffixes so variants of the same word
// land on one table key. Deliberately rough: a bad stem only matters if it
// collides with the category table, which the keys are chosen to avoid.
func stemWord(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		return strings.TrimSuffix(word, "ing")
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		return strings.TrimSuffix(word, "ed")
	case strings.HasSuffix(word, "es") && len(word) > 4:
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "s") && len(word) > 3 && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

func splitWords(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		words = append(words, p)
	}
	return words
}
