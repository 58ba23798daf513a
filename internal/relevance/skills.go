package relevance

import (
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// SkillIndex finds configured skills in a description in a single pass.
// Hits from the automaton are confirmed on word boundaries so "go" does not
// count inside "good".
type SkillIndex struct {
	keywords []string // lower-cased, unique
	matcher  *ahocorasick.Matcher
}

// NewSkillIndex builds an index over the given skills. Matching is
// case-insensitive and blank skills are dropped.
func NewSkillIndex(skills ...[]string) *SkillIndex {
	idx := &SkillIndex{}
	seen := make(map[string]bool)
	for _, list := range skills {
		for _, s := range list {
			kw := normalizeSkill(s)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			idx.keywords = append(idx.keywords, kw)
		}
	}
	if len(idx.keywords) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(idx.keywords)
	}
	return idx
}

// Find returns the set of normalized skills present in text.
func (idx *SkillIndex) Find(text string) map[string]bool {
	found := make(map[string]bool)
	if idx.matcher == nil || text == "" {
		return found
	}
	lower := normalizeSkill(text)
	for _, hit := range idx.matcher.Match([]byte(lower)) {
		if hit >= len(idx.keywords) {
			continue
		}
		kw := idx.keywords[hit]
		if containsWord(lower, kw) {
			found[kw] = true
		}
	}
	return found
}

// Partition splits skills into found and missing, preserving input order.
func Partition(skills []string, found map[string]bool) (matched, missing []string) {
	matched, missing = []string{}, []string{}
	seen := make(map[string]bool)
	for _, s := range skills {
		kw := normalizeSkill(s)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		if found[kw] {
			matched = append(matched, strings.TrimSpace(s))
		} else {
			missing = append(missing, strings.TrimSpace(s))
		}
	}
	return matched, missing
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// containsWord reports whether kw occurs in text with no letter or digit
// directly on either side.
func containsWord(text, kw string) bool {
	for start := 0; start <= len(text)-len(kw); {
		i := strings.Index(text[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(kw)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		start = i + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
