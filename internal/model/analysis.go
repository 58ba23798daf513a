package model

import "time"

// AnalysisResult is the scored outcome of analyzing one posting. Re-analysis
// replaces the stored result.
type AnalysisResult struct {
	PostingID              string    `json:"posting_id"`
	RelevanceScore         float64   `json:"relevance_score"`
	MatchedRequiredSkills  []string  `json:"matched_required_skills"`
	MatchedPreferredSkills []string  `json:"matched_preferred_skills"`
	MissingRequiredSkills  []string  `json:"missing_required_skills"`
	TitleMatch             bool      `json:"title_match"`
	MatchedPattern         string    `json:"matched_pattern,omitempty"`
	Reasoning              string    `json:"reasoning"`
	Analyzer               string    `json:"analyzer"`
	AnalyzedAt             time.Time `json:"analyzed_at"`
}

// Classify maps the score onto relevant or irrelevant.
func (r AnalysisResult) Classify(threshold float64) JobState {
	if r.RelevanceScore >= threshold {
		return StateRelevant
	}
	return StateIrrelevant
}
