package model

import (
	"errors"
	"fmt"
	"strings"
)

// Preferences describe what the user is looking for. They are read-only input
// to a run.
type Preferences struct {
	JobTitles             []string `json:"job_titles" yaml:"job_titles"`
	Locations             []string `json:"locations" yaml:"locations"`
	ExperienceLevels      []string `json:"experience_levels,omitempty" yaml:"experience_levels"`
	RemoteOK              bool     `json:"remote_ok" yaml:"remote_ok"`
	RelevantTitlePatterns []string `json:"relevant_title_patterns" yaml:"relevant_title_patterns"`
	RequiredSkills        []string `json:"required_skills" yaml:"required_skills"`
	PreferredSkills       []string `json:"preferred_skills" yaml:"preferred_skills"`
	RelevanceThreshold    float64  `json:"relevance_threshold" yaml:"relevance_threshold"`
	TitleMatchStrictness  float64  `json:"title_match_strictness" yaml:"title_match_strictness"`
}

const (
	DefaultRelevanceThreshold   = 0.7
	DefaultTitleMatchStrictness = 0.8
)

// DefaultPreferences is the profile used when the config has none.
func DefaultPreferences() Preferences {
	return Preferences{
		JobTitles:             []string{"AI Engineer", "Machine Learning Engineer", "Data Scientist"},
		Locations:             []string{"New York, NY", "San Francisco, CA"},
		RemoteOK:              true,
		RelevantTitlePatterns: []string{"AI", "Machine Learning", "ML", "Data Scientist", "NLP", "Computer Vision"},
		RequiredSkills:        []string{"Python", "Machine Learning"},
		PreferredSkills:       []string{"TensorFlow", "PyTorch", "NLP", "Computer Vision"},
		RelevanceThreshold:    DefaultRelevanceThreshold,
		TitleMatchStrictness:  DefaultTitleMatchStrictness,
	}
}

// Validate checks the preferences are usable for a run. Errors wrap
// ErrInvalidPreferences.
func (p Preferences) Validate() error {
	var errs []error
	if len(nonBlank(p.JobTitles)) == 0 {
		errs = append(errs, errors.New("at least one job title is required"))
	}
	if len(nonBlank(p.Locations)) == 0 {
		errs = append(errs, errors.New("at least one location is required"))
	}
	if p.RelevanceThreshold < 0 || p.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("relevance_threshold %.2f out of range [0,1]", p.RelevanceThreshold))
	}
	if p.TitleMatchStrictness < 0 || p.TitleMatchStrictness > 1 {
		errs = append(errs, fmt.Errorf("title_match_strictness %.2f out of range [0,1]", p.TitleMatchStrictness))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPreferences, errors.Join(errs...))
	}
	return nil
}

// SearchQueries expands titles x locations in preference order.
func (p Preferences) SearchQueries() []SearchQuery {
	titles := nonBlank(p.JobTitles)
	locations := nonBlank(p.Locations)
	levels := strings.Join(nonBlank(p.ExperienceLevels), ",")
	queries := make([]SearchQuery, 0, len(titles)*len(locations))
	for _, t := range titles {
		for _, l := range locations {
			queries = append(queries, SearchQuery{Term: t, Location: l, ExperienceLevels: levels, RemoteOK: p.RemoteOK})
		}
	}
	return queries
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
