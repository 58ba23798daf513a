package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderCounts(w io.Writer, c runs.Counts) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Found", "Duplicates", "Analyzed", "Failed", "Relevant", "Persisted", "Persist Errors", "Scrape Errors"})
	t.AppendRow(table.Row{c.Found, c.SkippedDuplicate, c.Analyzed, c.AnalysisFailed, c.Relevant, c.Persisted, c.PersistFailed, c.ScrapeErrors})
	t.Render()
}

func renderPostings(w io.Writer, postings []model.PostingView) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Title", "Company", "Location", "State", "Score", "Discovered"})
	for _, p := range postings {
		t.AppendRow(table.Row{
			p.ExternalID,
			truncate(p.Title, 48),
			truncate(p.Company, 24),
			truncate(p.Location, 24),
			p.State,
			scoreText(p.Analysis),
			formatTime(p.DiscoveredAt),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(postings)})
	t.Render()
}

func renderAnalysis(w io.Writer, r model.AnalysisResult, threshold float64) {
	t := newTable(w)
	t.AppendRow(table.Row{"Score", fmt.Sprintf("%.2f", r.RelevanceScore)})
	t.AppendRow(table.Row{"Verdict", r.Classify(threshold)})
	t.AppendRow(table.Row{"Analyzer", r.Analyzer})
	title := "no"
	if r.TitleMatch {
		title = "yes (" + r.MatchedPattern + ")"
	}
	t.AppendRow(table.Row{"Title match", title})
	t.AppendRow(table.Row{"Required", joinOrDash(r.MatchedRequiredSkills)})
	t.AppendRow(table.Row{"Missing", joinOrDash(r.MissingRequiredSkills)})
	t.AppendRow(table.Row{"Preferred", joinOrDash(r.MatchedPreferredSkills)})
	t.AppendRow(table.Row{"Reasoning", r.Reasoning})
	t.Render()
}

func renderHistory(w io.Writer, history []model.StateTransition) {
	t := newTable(w)
	t.AppendHeader(table.Row{"When", "State", "Notes"})
	states := make([]model.JobState, 0, len(history))
	for _, h := range history {
		t.AppendRow(table.Row{formatTime(h.Timestamp), h.State, h.Notes})
		states = append(states, h.State)
	}
	t.AppendFooter(table.Row{"Furthest", model.DominantState(states), ""})
	t.Render()
}

func renderSchedule(w io.Writer, cfg model.ScheduleConfig, next *time.Time) {
	t := newTable(w)
	t.AppendRow(table.Row{"Type", cfg.Type})
	switch cfg.Type {
	case model.ScheduleCustomInterval:
		t.AppendRow(table.Row{"Every", fmt.Sprintf("%dh", cfg.IntervalHours)})
	default:
		t.AppendRow(table.Row{"At", cfg.ExecutionTime})
	}
	t.AppendRow(table.Row{"Enabled", cfg.Enabled})
	last := "never"
	if cfg.LastRunAt != nil {
		last = formatTime(*cfg.LastRunAt)
	}
	t.AppendRow(table.Row{"Last run", last})
	if next != nil && cfg.Enabled {
		t.AppendRow(table.Row{"Next due", formatTime(*next)})
	}
	t.Render()
}

func renderStats(w io.Writer, s model.Stats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"State", "Postings"})
	for _, st := range model.StatesByPrecedence() {
		t.AppendRow(table.Row{st, s.ByState[st]})
	}
	t.AppendFooter(table.Row{"Total", s.Total})
	t.Render()

	for _, group := range []struct {
		title  string
		counts []model.Count
	}{
		{"Company", s.TopCompany},
		{"Location", s.TopLocation},
	} {
		if len(group.counts) == 0 {
			continue
		}
		t := newTable(w)
		t.AppendHeader(table.Row{group.title, "Postings"})
		for _, c := range group.counts {
			t.AppendRow(table.Row{c.Label, c.Count})
		}
		t.Render()
	}
}

func scoreText(a *model.AnalysisResult) string {
	if a == nil {
		return "--"
	}
	return fmt.Sprintf("%.2f", a.RelevanceScore)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
