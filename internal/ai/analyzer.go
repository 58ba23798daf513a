package ai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/jobscout/internal/filter"
	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/relevance"
)

// Name identifies results produced by the LLM analyzer.
const Name = "llm"

// LLMAnalyzer implements model.PostingAnalyzer with a two-stage check: the
// title is screened locally and only postings that pass are sent to the LLM.
// Postings that fail the title screen, or have no description, are scored
// by the keyword scorer instead.
type LLMAnalyzer struct {
	provider LLMProvider
	tmpl     *template.Template
	scorer   *relevance.Scorer
	logger   *slog.Logger
	now      func() time.Time
}

func NewLLMAnalyzer(provider LLMProvider, tmpl *template.Template, scorer *relevance.Scorer, logger *slog.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMAnalyzer{
		provider: provider,
		tmpl:     tmpl,
		scorer:   scorer,
		logger:   logger,
		now:      time.Now,
	}
}

type promptData struct {
	Title           string
	Company         string
	Location        string
	Description     string
	TitlePatterns   []string
	RequiredSkills  []string
	PreferredSkills []string
	Strictness      float64
	Threshold       float64
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, posting model.JobPosting, prefs model.Preferences) (model.AnalysisResult, error) {
	titles := filter.NewTitleMatcher(prefs.RelevantTitlePatterns, prefs.TitleMatchStrictness)
	title := titles.Match(posting.Title)
	if (!titles.Empty() && !title.Matched) || strings.TrimSpace(posting.Description) == "" {
		a.logger.Debug("skipping llm analysis", "posting", posting.ExternalID, "title_match", title.Matched)
		return a.scorer.Score(posting, prefs), nil
	}

	var promptBuf bytes.Buffer
	if err := a.tmpl.Execute(&promptBuf, promptData{
		Title:           posting.Title,
		Company:         posting.Company,
		Location:        posting.Location,
		Description:     posting.Description,
		TitlePatterns:   prefs.RelevantTitlePatterns,
		RequiredSkills:  prefs.RequiredSkills,
		PreferredSkills: prefs.PreferredSkills,
		Strictness:      prefs.TitleMatchStrictness,
		Threshold:       prefs.RelevanceThreshold,
	}); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := a.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("llm complete: %w", err)
	}

	resp, err := parseRelevance(raw)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	reqFound, reqMissing := intersect(prefs.RequiredSkills, resp.RequiredSkillsFound)
	prefFound, _ := intersect(prefs.PreferredSkills, resp.PreferredSkillsFound)

	score := math.Max(0, math.Min(1, *resp.RelevanceScore))
	reasoning := strings.TrimSpace(resp.Reasoning)
	if len(prefs.RequiredSkills) > 0 && len(reqFound) == 0 {
		if ceiling := a.scorer.Ceiling(prefs.RelevanceThreshold); score > ceiling {
			score = ceiling
			reasoning += " No required skill present, score capped."
		}
	}

	result := model.AnalysisResult{
		PostingID:              posting.ExternalID,
		RelevanceScore:         score,
		MatchedRequiredSkills:  reqFound,
		MatchedPreferredSkills: prefFound,
		MissingRequiredSkills:  reqMissing,
		TitleMatch:             title.Matched,
		Reasoning:              strings.TrimSpace(reasoning),
		Analyzer:               Name,
		AnalyzedAt:             a.now(),
	}
	if title.Matched {
		result.MatchedPattern = title.Pattern
	}
	return result, nil
}

// intersect keeps the configured skills the LLM reported, in configured
// order and spelling. Anything the LLM invented is dropped.
func intersect(configured, reported []string) (found, missing []string) {
	seen := make(map[string]bool, len(reported))
	for _, s := range reported {
		seen[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, s := range configured {
		if seen[strings.ToLower(strings.TrimSpace(s))] {
			found = append(found, s)
		} else {
			missing = append(missing, s)
		}
	}
	return found, missing
}
