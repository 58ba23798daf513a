// Package relevance scores postings against user preferences without I/O.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/amishk599/jobscout/internal/filter"
	"github.com/amishk599/jobscout/internal/model"
)

// Name identifies results produced by this package.
const Name = "keyword"

// Policy weights the three scoring components. Only components with
// configured inputs take part, and the weighted sum is normalised by the
// weights that did.
type Policy struct {
	RequiredWeight  float64 `yaml:"required_weight"`
	TitleWeight     float64 `yaml:"title_weight"`
	PreferredWeight float64 `yaml:"preferred_weight"`
	// MissingRequiredCeiling caps the score at threshold*ceiling when none of
	// the required skills is present.
	MissingRequiredCeiling float64 `yaml:"missing_required_ceiling"`
}

// DefaultPolicy ranks required skills above title above preferred skills.
func DefaultPolicy() Policy {
	return Policy{
		RequiredWeight:         0.60,
		TitleWeight:            0.25,
		PreferredWeight:        0.15,
		MissingRequiredCeiling: 0.9,
	}
}

func (p Policy) Validate() error {
	if p.RequiredWeight <= 0 {
		return errors.New("required_weight must be positive")
	}
	if p.TitleWeight < 0 || p.PreferredWeight < 0 {
		return errors.New("title_weight and preferred_weight must not be negative")
	}
	if p.MissingRequiredCeiling <= 0 || p.MissingRequiredCeiling >= 1 {
		return errors.New("missing_required_ceiling must be in (0,1)")
	}
	return nil
}

// Scorer computes relevance scores. It is safe for concurrent use.
type Scorer struct {
	policy Policy
	now    func() time.Time
}

// NewScorer returns a scorer using policy. The clock only stamps AnalyzedAt.
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy, now: time.Now}
}

// Score is deterministic for a given posting and preferences.
func (s *Scorer) Score(posting model.JobPosting, prefs model.Preferences) model.AnalysisResult {
	titles := filter.NewTitleMatcher(prefs.RelevantTitlePatterns, prefs.TitleMatchStrictness)
	index := NewSkillIndex(prefs.RequiredSkills, prefs.PreferredSkills)

	found := index.Find(posting.Description)
	reqMatched, reqMissing := Partition(prefs.RequiredSkills, found)
	prefMatched, prefMissing := Partition(prefs.PreferredSkills, found)
	title := titles.Match(posting.Title)

	var weighted, total float64
	reqTotal := len(reqMatched) + len(reqMissing)
	if reqTotal > 0 {
		weighted += s.policy.RequiredWeight * ratio(len(reqMatched), reqTotal)
		total += s.policy.RequiredWeight
	}
	if !titles.Empty() {
		credit := 0.0
		if title.Matched {
			credit = title.Coverage
		}
		weighted += s.policy.TitleWeight * credit
		total += s.policy.TitleWeight
	}
	prefTotal := len(prefMatched) + len(prefMissing)
	if prefTotal > 0 {
		weighted += s.policy.PreferredWeight * ratio(len(prefMatched), prefTotal)
		total += s.policy.PreferredWeight
	}

	score := 1.0
	if total > 0 {
		score = weighted / total
	}

	capped := false
	if reqTotal > 0 && len(reqMatched) == 0 {
		ceiling := s.Ceiling(prefs.RelevanceThreshold)
		if score > ceiling {
			score = ceiling
			capped = true
		}
	}
	score = roundScore(math.Max(0, math.Min(1, score)))

	var b reasoning
	switch {
	case titles.Empty():
		b.add("no title patterns configured")
	case title.Matched:
		b.add("title %q matched pattern %q (%d/%d keywords)", posting.Title, title.Pattern, title.Hits, title.Keywords)
	default:
		b.add("title %q matched no pattern (closest %q, %d/%d keywords)", posting.Title, title.Pattern, title.Hits, title.Keywords)
	}
	if reqTotal == 0 {
		b.add("no required skills configured")
	} else {
		b.add("required skills %d/%d found%s", len(reqMatched), reqTotal, listSuffix(reqMatched))
		if len(reqMissing) > 0 {
			b.add("missing required: %s", strings.Join(reqMissing, ", "))
		}
	}
	if prefTotal > 0 {
		b.add("preferred skills %d/%d found%s", len(prefMatched), prefTotal, listSuffix(prefMatched))
	}
	if capped {
		b.add("no required skill present, score capped")
	}
	if total == 0 {
		b.add("no relevance criteria configured")
	}

	result := model.AnalysisResult{
		PostingID:              posting.ExternalID,
		RelevanceScore:         score,
		MatchedRequiredSkills:  reqMatched,
		MatchedPreferredSkills: prefMatched,
		MissingRequiredSkills:  reqMissing,
		TitleMatch:             title.Matched,
		Analyzer:               Name,
		AnalyzedAt:             s.now(),
	}
	if title.Matched {
		result.MatchedPattern = title.Pattern
	}

	verdict := "irrelevant"
	if result.Classify(prefs.RelevanceThreshold) == model.StateRelevant {
		verdict = "relevant"
	}
	b.add("score %.2f vs threshold %.2f: %s", score, prefs.RelevanceThreshold, verdict)
	result.Reasoning = b.String()
	return result
}

// Ceiling is the highest score a posting without any required skill may get.
// It is truncated to the score precision so it stays below the threshold.
func (s *Scorer) Ceiling(threshold float64) float64 {
	return math.Floor(threshold*s.policy.MissingRequiredCeiling*scorePrecision+1e-9) / scorePrecision
}

// scores carry four decimals
const scorePrecision = 1e4

func roundScore(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}

func ratio(n, d int) float64 {
	return float64(n) / float64(d)
}

func listSuffix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return " (" + strings.Join(items, ", ") + ")"
}

type reasoning struct {
	parts []string
}

func (r *reasoning) add(format string, args ...any) {
	r.parts = append(r.parts, fmt.Sprintf(format, args...))
}

func (r *reasoning) String() string {
	return strings.Join(r.parts, "; ") + "."
}

// Analyzer adapts a Scorer to model.PostingAnalyzer. It never fails.
type Analyzer struct {
	scorer *Scorer
}

func NewAnalyzer(scorer *Scorer) *Analyzer {
	return &Analyzer{scorer: scorer}
}

func (a *Analyzer) Analyze(_ context.Context, posting model.JobPosting, prefs model.Preferences) (model.AnalysisResult, error) {
	return a.scorer.Score(posting, prefs), nil
}
