package filter

import (
	"math"
	"strings"
	"unicode"
)

// TitleMatch is the outcome of matching a title against the configured patterns.
type TitleMatch struct {
	Matched  bool
	Pattern  string  // best pattern, set even on a partial miss
	Coverage float64 // fraction of the best pattern's keywords found in the title
	Hits     int
	Keywords int
}

// TitleMatcher matches job titles against keyword patterns. Strictness is the
// fraction of a pattern's keywords that must appear in the title.
type TitleMatcher struct {
	patterns   []pattern
	strictness float64
}

type pattern struct {
	raw      string
	keywords []string
}

// NewTitleMatcher builds a matcher. Blank patterns are ignored; strictness is
// clamped to [0,1].
func NewTitleMatcher(patterns []string, strictness float64) *TitleMatcher {
	m := &TitleMatcher{strictness: math.Max(0, math.Min(1, strictness))}
	for _, p := range patterns {
		kws := strings.Fields(strings.ToLower(p))
		if len(kws) == 0 {
			continue
		}
		m.patterns = append(m.patterns, pattern{raw: strings.TrimSpace(p), keywords: kws})
	}
	return m
}

// Empty reports whether the matcher has no patterns.
func (m *TitleMatcher) Empty() bool {
	return len(m.patterns) == 0
}

// Match scores title against every pattern and returns the best one. Ties keep
// the earlier pattern so results are stable.
func (m *TitleMatcher) Match(title string) TitleMatch {
	lower := strings.ToLower(title)
	tokens := tokenize(lower)

	var best TitleMatch
	for _, p := range m.patterns {
		hits := 0
		for _, kw := range p.keywords {
			if keywordHit(kw, lower, tokens) {
				hits++
			}
		}
		coverage := float64(hits) / float64(len(p.keywords))
		matched := hits >= m.required(len(p.keywords))

		better := best.Pattern == "" ||
			(matched && !best.Matched) ||
			(matched == best.Matched && coverage > best.Coverage)
		if better {
			best = TitleMatch{
				Matched:  matched,
				Pattern:  p.raw,
				Coverage: coverage,
				Hits:     hits,
				Keywords: len(p.keywords),
			}
		}
	}
	return best
}

func (m *TitleMatcher) required(n int) int {
	req := int(math.Ceil(m.strictness*float64(n) - 1e-9))
	if req < 1 {
		req = 1
	}
	return req
}

// keywordHit treats short keywords as whole tokens so "ai" does not hit
// "retail"; longer ones may appear inside a word ("engineer" in "engineering").
func keywordHit(kw, lower string, tokens map[string]bool) bool {
	if tokens[kw] {
		return true
	}
	return len(kw) >= 4 && strings.Contains(lower, kw)
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	}) {
		out[f] = true
	}
	return out
}

// ContainsAny reports whether text contains any keyword (case-insensitive
// substring). An empty keyword list matches everything.
func ContainsAny(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
