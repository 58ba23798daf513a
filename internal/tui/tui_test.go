package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
)

type fakeBackend struct {
	transitions []model.JobState
	transErr    error
	result      model.AnalysisResult
	history     []model.StateTransition
}

func (f *fakeBackend) StateHistory(_ context.Context, _ string) ([]model.StateTransition, error) {
	return f.history, nil
}

func (f *fakeBackend) Transition(_ context.Context, _ string, state model.JobState, _ string) error {
	if f.transErr != nil {
		return f.transErr
	}
	f.transitions = append(f.transitions, state)
	return nil
}

func (f *fakeBackend) Reanalyze(_ context.Context, id string, _ model.Preferences) (model.AnalysisResult, error) {
	r := f.result
	r.PostingID = id
	return r, nil
}

func view(id string, score *float64, discovered time.Time) model.PostingView {
	v := model.PostingView{
		JobPosting: model.JobPosting{ExternalID: id, Title: "Engineer " + id, Company: "Acme", DiscoveredAt: discovered},
		State:      model.StateNew,
	}
	if score != nil {
		v.Analysis = &model.AnalysisResult{PostingID: id, RelevanceScore: *score}
	}
	return v
}

func ptr(f float64) *float64 { return &f }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(m browserModel) browserModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(browserModel)
}

func TestNewBrowserModel_SortsAndSplitsRelevant(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	postings := []model.PostingView{
		view("unscored", nil, base.Add(2*time.Hour)),
		view("low", ptr(0.3), base),
		view("high", ptr(0.9), base),
		view("mid", ptr(0.7), base.Add(time.Hour)),
	}

	m := newBrowserModel(postings, nil, model.Preferences{RelevanceThreshold: 0.7})

	var order []string
	for _, p := range m.all {
		order = append(order, p.ExternalID)
	}
	if got := strings.Join(order, ","); got != "high,mid,low,unscored" {
		t.Errorf("order = %s, want high,mid,low,unscored", got)
	}
	if len(m.relevant) != 2 {
		t.Fatalf("relevant = %d, want 2", len(m.relevant))
	}
	if postings[0].ExternalID != "unscored" {
		t.Error("input slice was reordered")
	}
}

func TestBrowser_StateKeyTransitionsPosting(t *testing.T) {
	backend := &fakeBackend{}
	m := sized(newBrowserModel([]model.PostingView{view("1", ptr(0.8), time.Now())}, backend, model.Preferences{RelevanceThreshold: 0.7}))

	next, cmd := m.Update(key("enter"))
	m = next.(browserModel)
	if m.view != viewDetail || m.detail.ExternalID != "1" {
		t.Fatalf("enter did not open detail view")
	}
	if cmd == nil {
		t.Fatal("expected history fetch on open")
	}
	next, _ = m.Update(cmd())
	m = next.(browserModel)
	if m.historyLoading {
		t.Error("history still loading after historyMsg")
	}

	next, cmd = m.Update(key("s"))
	m = next.(browserModel)
	if cmd == nil || m.busy == "" {
		t.Fatal("expected a transition command")
	}
	next, _ = m.Update(cmd())
	m = next.(browserModel)

	if len(backend.transitions) != 1 || backend.transitions[0] != model.StateSaved {
		t.Fatalf("transitions = %v, want [saved]", backend.transitions)
	}
	if m.detail.State != model.StateSaved || m.all[0].State != model.StateSaved {
		t.Errorf("state not updated: detail=%s list=%s", m.detail.State, m.all[0].State)
	}
	if len(m.history) != 1 {
		t.Errorf("history = %d entries, want 1", len(m.history))
	}
}

func TestBrowser_TransitionErrorShown(t *testing.T) {
	backend := &fakeBackend{transErr: errors.New("store down")}
	m := sized(newBrowserModel([]model.PostingView{view("1", nil, time.Now())}, backend, model.Preferences{}))
	next, _ := m.Update(key("enter"))
	m = next.(browserModel)

	next, cmd := m.Update(key("x"))
	m = next.(browserModel)
	next, _ = m.Update(cmd())
	m = next.(browserModel)

	if m.detail.State != model.StateNew {
		t.Errorf("state = %s, want unchanged", m.detail.State)
	}
	if !strings.Contains(m.errText, "store down") {
		t.Errorf("errText = %q", m.errText)
	}
}

func TestBrowser_ReanalyzeMovesPostingIntoRelevant(t *testing.T) {
	backend := &fakeBackend{result: model.AnalysisResult{RelevanceScore: 0.95, Analyzer: "keyword"}}
	m := sized(newBrowserModel([]model.PostingView{view("1", ptr(0.2), time.Now())}, backend, model.Preferences{RelevanceThreshold: 0.7}))
	if len(m.relevant) != 0 {
		t.Fatal("posting should start outside the relevant pane")
	}

	next, _ := m.Update(key("enter"))
	m = next.(browserModel)
	next, cmd := m.Update(key("e"))
	m = next.(browserModel)
	next, _ = m.Update(cmd())
	m = next.(browserModel)

	if len(m.relevant) != 1 {
		t.Fatalf("relevant = %d, want 1", len(m.relevant))
	}
	if m.detail.Analysis == nil || m.detail.Analysis.RelevanceScore != 0.95 {
		t.Errorf("detail analysis = %+v", m.detail.Analysis)
	}
}

func TestBrowser_ListNavigation(t *testing.T) {
	m := sized(newBrowserModel([]model.PostingView{
		view("1", ptr(0.9), time.Now()),
		view("2", ptr(0.1), time.Now()),
	}, nil, model.Preferences{RelevanceThreshold: 0.5}))

	next, _ := m.Update(key("down"))
	m = next.(browserModel)
	next, _ = m.Update(key("down"))
	m = next.(browserModel)
	if m.leftCursor != 1 {
		t.Errorf("leftCursor = %d, want clamped to 1", m.leftCursor)
	}

	next, _ = m.Update(key("tab"))
	m = next.(browserModel)
	if m.activePane != 1 {
		t.Fatal("tab did not switch panes")
	}
	next, _ = m.Update(key("enter"))
	m = next.(browserModel)
	if m.detail.ExternalID != "1" {
		t.Errorf("detail = %s, want the relevant posting", m.detail.ExternalID)
	}

	next, _ = m.Update(key("esc"))
	m = next.(browserModel)
	if m.view != viewList {
		t.Error("esc did not return to the list")
	}
	next, _ = m.Update(key("q"))
	if !next.(browserModel).wantQuit {
		t.Error("q should quit")
	}
}

func TestRenderDetail_ShowsAnalysis(t *testing.T) {
	m := sized(newBrowserModel(nil, nil, model.Preferences{}))
	m.detail = view("1", ptr(0.75), time.Now())
	m.detail.Analysis.MissingRequiredSkills = []string{"Kubernetes"}
	m.detail.Analysis.Reasoning = "Strong Go background."

	out := m.renderDetail()
	for _, want := range []string{"0.75", "Kubernetes", "Strong Go background."} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q", want)
		}
	}
}

func TestWordWrap(t *testing.T) {
	got := wordWrap("one two three four", 9)
	if got != "one two\nthree\nfour" {
		t.Errorf("wordWrap = %q", got)
	}
	if wordWrap("   ", 10) != "" {
		t.Error("blank text should wrap to empty")
	}
}

func TestStateOptions(t *testing.T) {
	opts := StateOptions(model.Stats{
		Total:   5,
		ByState: map[model.JobState]int{model.StateRelevant: 3, model.StateNew: 2},
	})
	if len(opts) != 3 {
		t.Fatalf("options = %d, want 3", len(opts))
	}
	if opts[0].State != "" || opts[0].Count != 5 {
		t.Errorf("first option = %+v, want all postings", opts[0])
	}
	if opts[1].State != model.StateRelevant || opts[2].State != model.StateNew {
		t.Errorf("options not in precedence order: %+v", opts)
	}
}

func TestPicker_Keys(t *testing.T) {
	m := pickerModel{options: []StateOption{{Count: 1}, {State: model.StateSaved, Count: 1}}, chosen: -1}

	next, _ := m.Update(key("j"))
	next, _ = next.Update(key("enter"))
	if got := next.(pickerModel).chosen; got != 1 {
		t.Errorf("chosen = %d, want 1", got)
	}

	next, _ = m.Update(key("q"))
	if got := next.(pickerModel).chosen; got != PickQuit {
		t.Errorf("chosen = %d, want PickQuit", got)
	}
}

func TestTally_LiveAndComplete(t *testing.T) {
	st := runs.RunStatus{Steps: []runs.Step{
		{Name: runs.StepScraping, Events: []runs.Event{
			{Data: runs.JobFound{ExternalID: "1"}},
			{Data: runs.JobFound{ExternalID: "2"}},
			{Data: runs.ScrapeFailed{Query: "q", Error: "boom"}},
		}},
		{Name: runs.StepAnalyzing, Events: []runs.Event{
			{Data: runs.Analyzed{ExternalID: "1", Score: ptr(0.9), Relevant: true}},
			{Data: runs.Analyzed{ExternalID: "2", Error: "timeout"}},
		}},
	}}

	c := Tally(st)
	want := runs.Counts{Found: 2, ScrapeErrors: 1, Analyzed: 2, AnalysisFailed: 1, Relevant: 1}
	if c != want {
		t.Errorf("Tally = %+v, want %+v", c, want)
	}

	reported := runs.Counts{Found: 2, Persisted: 1}
	st.Steps[1].Events = append(st.Steps[1].Events, runs.Event{Data: runs.Complete{Counts: reported}})
	if c := Tally(st); c != reported {
		t.Errorf("Tally after complete = %+v, want %+v", c, reported)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		data runs.Payload
		want string
	}{
		{runs.JobFound{Title: "SRE", Company: "Acme"}, "found SRE at Acme"},
		{runs.Analyzed{ExternalID: "7", Score: ptr(0.5)}, "scored 7 0.50 (irrelevant)"},
		{runs.Analyzed{ExternalID: "7", Error: "bad json"}, "analysis of 7 failed: bad json"},
		{runs.Failed{Error: "deadline"}, "error: deadline"},
	}
	for _, tt := range tests {
		if got := Describe(runs.Event{Data: tt.data}); got != tt.want {
			t.Errorf("Describe(%T) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestWatcher_QuitsWhenRunTerminal(t *testing.T) {
	status := runs.RunStatus{RunID: "r1", Status: runs.StatusRunning}
	get := func(id string) (runs.RunStatus, bool) {
		return status, id == "r1"
	}
	m := newWatcherModel("r1", get)

	next, cmd := m.Update(runStatusMsg{status: status, found: true})
	m = next.(watcherModel)
	if m.done || cmd == nil {
		t.Fatal("running status should keep polling")
	}
	if !strings.Contains(m.View(), "r1") {
		t.Error("view should name the run")
	}

	status.Status = runs.StatusCompleted
	next, _ = m.Update(runStatusMsg{status: status, found: true})
	m = next.(watcherModel)
	if !m.done || m.detached {
		t.Errorf("done=%v detached=%v, want finished without detaching", m.done, m.detached)
	}
}

func TestWatcher_UnknownRun(t *testing.T) {
	m := newWatcherModel("gone", nil)
	next, _ := m.Update(runStatusMsg{found: false})
	if next.(watcherModel).err == nil {
		t.Error("expected error for untracked run")
	}
}

func TestWatcher_Detach(t *testing.T) {
	m := newWatcherModel("r1", nil)
	next, _ := m.Update(key("q"))
	if !next.(watcherModel).detached {
		t.Error("q should detach")
	}
}
