package ai

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/relevance.md
var relevancePromptRaw string

// RelevanceTemplate is the parsed prompt for posting relevance analysis.
var RelevanceTemplate = template.Must(template.New("relevance").
	Funcs(template.FuncMap{"join": joinOrNone}).
	Parse(relevancePromptRaw))

func joinOrNone(items []string, sep string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, sep)
}
