// Package extract turns raw LLM output into a clean generation result.
// Provider output is effectively adversarial input: clean JSON, JSON inside
// markdown fences, JSON buried in prose, or a long reasoning trace with the
// real answer somewhere in the middle. Every stage here degrades to the next;
// none may panic.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Output is the normalized provider answer.
type Output struct {
	Description string `json:"description"`
	Tweet       string `json:"tweet"`
	Location    string `json:"location,omitempty"`
}

// Markers are the boundary phrases used to salvage an answer out of a
// reasoning trace. They are model- and version-dependent, so providers can
// register their own list.
type Markers struct {
	// Intro phrases typically precede the real answer ("final answer: ...").
	Intro []string
	// Correction phrases typically follow it ("wait, actually...").
	Correction []string
}

var defaultMarkers = Markers{
	Intro: []string{
		"final answer",
		"final tweet",
		"here's the tweet",
		"here is the tweet",
		"the tweet is",
		"my answer",
		"so the tweet",
	},
	Correction: []string{
		"wait,",
		"wait.",
		"actually,",
		"let me reconsider",
		"let me try again",
		"on second thought",
		"hmm,",
	},
}

var providerMarkers = map[string]Markers{}

// RegisterMarkers installs provider-specific trace boundary phrases,
// overriding the defaults for that provider.
func RegisterMarkers(provider string, m Markers) {
	providerMarkers[provider] = m
}

// traceThreshold gates the reasoning-trace stage: short responses are never
// "dominated by deliberation".
const traceThreshold = 160

// Normalize extracts {description, tweet, location} from raw provider text.
// The second return is false only when nothing usable was found — distinct
// from a model that explicitly answered with empty fields.
func Normalize(raw string) (*Output, bool) {
	return NormalizeFor("", raw)
}

// NormalizeFor is Normalize with provider-specific trace markers.
func NormalizeFor(provider, raw string) (*Output, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if out, ok := parseJSON(stripFences(raw)); ok {
		return out, true
	}
	if out, ok := scanFields(raw); ok {
		return out, true
	}
	if len(raw) >= traceThreshold {
		if out, ok := salvageTrace(provider, raw); ok {
			return out, true
		}
	}
	return nil, false
}

// Clean strips a markdown code fence and surrounding whitespace without any
// structural interpretation. For plain-text generation the cleaned raw text
// IS the answer; Normalize is for structured or adversarial output.
func Clean(s string) string {
	return stripFences(strings.TrimSpace(s))
}

// ── Stage 1: fenced or plain JSON ─────────────────────────────────────────────

// stripFences removes a single markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 0 && (strings.HasPrefix(lines[0], "```") || strings.HasPrefix(lines[0], "~~~")) {
		lines = lines[1:]
	}
	if len(lines) > 0 && (strings.HasPrefix(lines[len(lines)-1], "```") || strings.HasPrefix(lines[len(lines)-1], "~~~")) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func parseJSON(s string) (*Output, bool) {
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	out := &Output{
		Description: gjson.Get(s, "description").String(),
		Tweet:       gjson.Get(s, "tweet").String(),
		Location:    gjson.Get(s, "location").String(),
	}
	if out.Description == "" && out.Tweet == "" {
		return nil, false
	}
	return out, true
}

// ── Stage 2: field-level pattern extraction ───────────────────────────────────

var (
	tweetField       = fieldPattern("tweet")
	descriptionField = fieldPattern("description")
	locationField    = fieldPattern("location")
)

func fieldPattern(name string) *regexp.Regexp {
	// Matches "name": "..." with escaped quotes honored inside the value.
	return regexp.MustCompile(`"` + name + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

func scanFields(s string) (*Output, bool) {
	out := &Output{
		Tweet:       matchField(tweetField, s),
		Description: matchField(descriptionField, s),
		Location:    matchField(locationField, s),
	}
	if out.Tweet == "" && out.Description == "" && out.Location == "" {
		return nil, false
	}
	return out, true
}

func matchField(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	// The capture still carries JSON escapes; Unquote resolves them.
	if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return unquoted
	}
	return m[1]
}

// ── Stage 3: reasoning-trace salvage ──────────────────────────────────────────

var quotedSpan = regexp.MustCompile(`[""]([^""]{8,280})[""]|"([^"\n]{8,280})"`)

func salvageTrace(provider, raw string) (*Output, bool) {
	markers := defaultMarkers
	if m, ok := providerMarkers[provider]; ok {
		markers = m
	}

	lower := strings.ToLower(raw)

	// An intro phrase is the precondition for treating the text as a trace at
	// all. Long text without one is a long answer, not deliberation; carving
	// it up here would destroy it, so let the caller serve it whole.
	start := -1
	for _, phrase := range markers.Intro {
		if idx := strings.LastIndex(lower, phrase); idx >= 0 && idx+len(phrase) > start {
			start = idx + len(phrase)
		}
	}
	if start < 0 {
		return nil, false
	}

	end := len(raw)
	for _, phrase := range markers.Correction {
		if idx := strings.Index(lower[start:], phrase); idx >= 0 && start+idx < end {
			end = start + idx
		}
	}

	candidate := strings.Trim(strings.TrimSpace(raw[start:end]), ": \n\t")
	if candidate == "" {
		return nil, false
	}

	// A quoted, sentence-like span carrying a hashtag or emoji is the best
	// discriminator between the literal answer and surrounding commentary.
	for _, m := range quotedSpan.FindAllStringSubmatch(candidate, -1) {
		span := m[1]
		if span == "" {
			span = m[2]
		}
		if strings.Contains(span, "#") || containsEmoji(span) {
			return traceResult(provider, span, false), true
		}
	}

	if s := lastSentence(candidate); s != "" {
		return traceResult(provider, s, false), true
	}

	// Last resort: hard trailing truncation of whatever sits between the
	// boundaries.
	tail := candidate
	if r := []rune(tail); len(r) > 240 {
		tail = string(r[len(r)-240:])
	}
	return traceResult(provider, strings.TrimSpace(tail), true), true
}

func traceResult(provider, tweet string, lastResort bool) *Output {
	// Format drift must be visible: a normalizer living off the last-resort
	// path means the provider's answer shape changed underneath us.
	ev := log.Debug()
	if lastResort {
		ev = log.Warn()
	}
	ev.Str("provider", provider).
		Bool("last_resort", lastResort).
		Msg("answer salvaged from reasoning trace")
	return &Output{Tweet: strings.Trim(strings.TrimSpace(tweet), `"'""`)}
}

func lastSentence(s string) string {
	parts := regexp.MustCompile(`[.!?]\s+`).Split(s, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); len(p) >= 16 {
			return p
		}
	}
	return ""
}

func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
			return true
		case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
			return true
		}
	}
	return false
}
