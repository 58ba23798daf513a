package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amishk599/jobscout/internal/model"
)

// relevanceResponse is the JSON shape requested from the LLM.
type relevanceResponse struct {
	RequiredSkillsFound  []string `json:"required_skills_found"`
	PreferredSkillsFound []string `json:"preferred_skills_found"`
	RelevanceScore       *float64 `json:"relevance_score"`
	Reasoning            string   `json:"reasoning"`
}

// parseRelevance accepts bare JSON, JSON inside a markdown code fence, or
// JSON surrounded by prose.
func parseRelevance(raw string) (relevanceResponse, error) {
	var resp relevanceResponse
	body := extractJSON(raw)
	if body == "" {
		return resp, fmt.Errorf("%w: no JSON object in response", model.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if resp.RelevanceScore == nil {
		return resp, fmt.Errorf("%w: relevance_score missing", model.ErrMalformedResponse)
	}
	return resp, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop the language tag line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
