// Package tui holds the terminal views: a live run watcher and a split-pane
// postings browser.
package tui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobscout/internal/model"
)

// Lines per posting in the list view (title + subtitle + blank separator).
const postingItemHeight = 3

const timeLayout = "2006-01-02 15:04"

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle   = border(colorAccent)
	inactiveBorderStyle = border(colorDim)

	headerStyle         = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	activeHeaderStyle   = headerStyle.Foreground(colorAccent)
	inactiveHeaderStyle = headerStyle.Foreground(colorDim)

	statusBarStyle = fg(colorText).Background(colorBar).Padding(0, 1)

	postingTitleStyle     = lipgloss.NewStyle().Bold(true)
	postingSubtitleStyle  = fg(colorMuted)
	selectedTitleStyle    = fg(colorBright).Background(colorSelect).Bold(true)
	selectedSubtitleStyle = fg(colorText).Background(colorSelect)

	detailLabelStyle = fg(colorAccent).Bold(true).Width(16)
	detailValueStyle = lipgloss.NewStyle()
	detailTitleStyle = fg(colorBright).Bold(true).MarginBottom(1)

	dividerStyle  = fg(colorDim)
	hintStyle     = fg(colorMuted).Italic(true)
	bodyTextStyle = fg(colorText)
)

// Backend is what the browser needs to act on a posting.
type Backend interface {
	StateHistory(ctx context.Context, externalID string) ([]model.StateTransition, error)
	Transition(ctx context.Context, externalID string, state model.JobState, notes string) error
	Reanalyze(ctx context.Context, externalID string, prefs model.Preferences) (model.AnalysisResult, error)
}

// stateKeys maps detail-view keys to the states a user may set.
var stateKeys = map[string]model.JobState{
	"v": model.StateViewed,
	"s": model.StateSaved,
	"a": model.StateApplied,
	"x": model.StateRejected,
}

const (
	actionTimeout = 2 * time.Minute
	browserNote   = "set from browser"
)

type historyMsg struct {
	id      string
	history []model.StateTransition
	err     error
}

type transitionedMsg struct {
	id    string
	state model.JobState
	at    time.Time
	err   error
}

type reanalyzedMsg struct {
	id     string
	result model.AnalysisResult
	err    error
}

type browserModel struct {
	all           []model.PostingView
	relevant      []model.PostingView
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left, 1=right
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	backend Backend
	prefs   model.Preferences

	// Detail view state
	view            viewState
	detail          model.PostingView
	detailViewport  viewport.Model
	history         []model.StateTransition
	historyLoading  bool
	showDescription bool
	busy            string
	notice          string
	errText         string

	wantQuit bool
}

func newBrowserModel(postings []model.PostingView, backend Backend, prefs model.Preferences) browserModel {
	all := slices.Clone(postings)
	sortPostings(all)
	m := browserModel{all: all, backend: backend, prefs: prefs}
	m.relevant = m.filterRelevant()
	return m
}

func (m browserModel) filterRelevant() []model.PostingView {
	var out []model.PostingView
	for _, p := range m.all {
		if isRelevant(p, m.prefs.RelevanceThreshold) {
			out = append(out, p)
		}
	}
	return out
}

func isRelevant(p model.PostingView, threshold float64) bool {
	return p.Analysis != nil && p.Analysis.RelevanceScore >= threshold
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case historyMsg:
		if msg.id != m.detail.ExternalID {
			return m, nil
		}
		m.historyLoading = false
		if msg.err != nil {
			m.errText = fmt.Sprintf("failed to load history: %v", msg.err)
		} else {
			m.history = msg.history
		}
		m.refreshDetail()
		return m, nil

	case transitionedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errText = fmt.Sprintf("could not mark %s: %v", msg.state, msg.err)
			m.refreshDetail()
			return m, nil
		}
		m.errText = ""
		m.notice = "marked " + string(msg.state)
		m.updatePosting(msg.id, func(p *model.PostingView) {
			p.State = msg.state
			p.StateAt = msg.at
		})
		if msg.id == m.detail.ExternalID {
			m.history = append(m.history, model.StateTransition{State: msg.state, Timestamp: msg.at, Notes: browserNote})
		}
		m.refreshDetail()
		return m, nil

	case reanalyzedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errText = fmt.Sprintf("re-analysis failed: %v", msg.err)
			m.refreshDetail()
			return m, nil
		}
		m.errText = ""
		m.notice = fmt.Sprintf("re-scored %.2f", msg.result.RelevanceScore)
		result := msg.result
		m.updatePosting(msg.id, func(p *model.PostingView) {
			p.Analysis = &result
		})
		m.relevant = m.filterRelevant()
		m.rightCursor = clamp(m.rightCursor, 0, max(len(m.relevant)-1, 0))
		m.refreshDetail()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		m.notice = ""
		m.recalcContent()
		return m, nil
	case "o":
		openURL(m.detail.URL)
		return m, nil
	case "r":
		if m.detail.Description != "" {
			m.showDescription = !m.showDescription
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	case "e":
		if m.backend != nil && m.busy == "" {
			m.busy = "re-analyzing..."
			m.refreshDetail()
			return m, m.reanalyzeCmd(m.detail.ExternalID)
		}
		return m, nil
	}

	if state, ok := stateKeys[key]; ok {
		if m.backend != nil && m.busy == "" && m.detail.State != state {
			m.busy = "saving..."
			m.refreshDetail()
			return m, m.transitionCmd(m.detail.ExternalID, state)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m browserModel) transitionCmd(id string, state model.JobState) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := backend.Transition(ctx, id, state, browserNote)
		return transitionedMsg{id: id, state: state, at: time.Now(), err: err}
	}
}

func (m browserModel) reanalyzeCmd(id string) tea.Cmd {
	backend, prefs := m.backend, m.prefs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		result, err := backend.Reanalyze(ctx, id, prefs)
		return reanalyzedMsg{id: id, result: result, err: err}
	}
}

func (m browserModel) historyCmd(id string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		history, err := backend.StateHistory(ctx, id)
		return historyMsg{id: id, history: history, err: err}
	}
}

func (m *browserModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.all)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.relevant)-1, 0))
	}
}

func (m *browserModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * postingItemHeight
	cursorBottom := cursorTop + postingItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m browserModel) openDetailView() (tea.Model, tea.Cmd) {
	postings := m.activePostings()
	if len(postings) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detail = postings[m.activeCursor()]
	m.history = nil
	m.errText = ""
	m.notice = ""
	m.showDescription = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())

	if m.backend != nil {
		m.historyLoading = true
		return m, m.historyCmd(m.detail.ExternalID)
	}
	return m, nil
}

// updatePosting applies fn to the posting in both lists and the detail view.
func (m *browserModel) updatePosting(id string, fn func(p *model.PostingView)) {
	for i := range m.all {
		if m.all[i].ExternalID == id {
			fn(&m.all[i])
			break
		}
	}
	for i := range m.relevant {
		if m.relevant[i].ExternalID == id {
			fn(&m.relevant[i])
			break
		}
	}
	if m.detail.ExternalID == id {
		fn(&m.detail)
	}
}

func (m *browserModel) refreshDetail() {
	if m.view == viewDetail {
		m.detailViewport.SetContent(m.renderDetail())
	}
}

func (m *browserModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browserModel) recalcContent() {
	m.leftViewport.SetContent(renderPostings(m.all, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderPostings(m.relevant, m.rightCursor, m.activePane == 1))
}

func (m browserModel) activePostings() []model.PostingView {
	if m.activePane == 0 {
		return m.all
	}
	return m.relevant
}

func (m browserModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m browserModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Postings (%d)", len(m.all))
	rightHeader := fmt.Sprintf(" Relevant ≥ %.2f (%d)", m.prefs.RelevanceThreshold, len(m.relevant))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d postings | %d relevant    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.all), len(m.relevant))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browserModel) viewDetail() string {
	title := detailTitleStyle.Render("Posting")
	switch {
	case m.busy != "":
		title += "  (" + m.busy + ")"
	case m.historyLoading:
		title += "  (loading...)"
	case m.notice != "":
		title += "  " + okStyle.Render(m.notice)
	}

	frame := activeBorderStyle.Width(m.width - 2)
	content := frame.Render(m.detailViewport.View())

	statusText := " v viewed  s saved  a applied  x rejected  e re-analyze  o open URL  esc back  q quit"
	if m.detail.Description != "" {
		statusText = " v viewed  s saved  a applied  x rejected  e re-analyze  r desc  o open URL  esc back  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browserModel) renderDetail() string {
	p := m.detail
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Company", p.Company)
	addField("Location", p.Location)
	addField("Posting ID", p.ExternalID)
	addField("Source", p.Source)
	addField("Search Term", p.SourceTerm)

	b.WriteByte('\n')
	addField("State", string(p.State))
	if !p.StateAt.IsZero() {
		addField("State Since", p.StateAt.Local().Format(timeLayout))
	}
	if !p.DiscoveredAt.IsZero() {
		addField("Discovered", p.DiscoveredAt.Local().Format(timeLayout))
	}
	addField("URL", p.URL)

	if m.errText != "" {
		b.WriteByte('\n')
		b.WriteString(failStyle.Render("⚠ "+m.errText) + "\n")
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if a := p.Analysis; a != nil {
		b.WriteByte('\n')
		b.WriteString(divider("── Relevance ") + "\n\n")
		addField("Score", fmt.Sprintf("%.2f", a.RelevanceScore))
		addField("Analyzer", a.Analyzer)
		if a.TitleMatch {
			addField("Title Match", a.MatchedPattern)
		}
		if len(a.MatchedRequiredSkills) > 0 {
			addField("Required", strings.Join(a.MatchedRequiredSkills, ", "))
		}
		if len(a.MissingRequiredSkills) > 0 {
			addField("Missing", strings.Join(a.MissingRequiredSkills, ", "))
		}
		if len(a.MatchedPreferredSkills) > 0 {
			addField("Preferred", strings.Join(a.MatchedPreferredSkills, ", "))
		}
		if a.Reasoning != "" {
			b.WriteByte('\n')
			b.WriteString(detailValueStyle.Render(wordWrap(a.Reasoning, wrapWidth)) + "\n")
		}
	} else {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  not analyzed yet, press e to analyze") + "\n")
	}

	if len(m.history) > 0 {
		b.WriteByte('\n')
		b.WriteString(divider("── History ") + "\n\n")
		for _, t := range m.history {
			line := fmt.Sprintf("  %s  %-10s %s", t.Timestamp.Local().Format(timeLayout), t.State, t.Notes)
			b.WriteString(detailValueStyle.Render(strings.TrimRight(line, " ")) + "\n")
		}
	}

	if p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			b.WriteString(divider("── Description ") + "\n\n")
			b.WriteString(bodyTextStyle.Render(wordWrap(p.Description, wrapWidth)) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read the description") + "\n")
		}
	}

	return b.String()
}

func renderPostings(postings []model.PostingView, cursor int, isActive bool) string {
	if len(postings) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, p := range postings {
		isSelected := isActive && i == cursor

		titleSt := postingTitleStyle
		subtitleSt := postingSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(p.Title))
		b.WriteByte('\n')

		score := "--"
		if p.Analysis != nil {
			score = fmt.Sprintf("%.2f", p.Analysis.RelevanceScore)
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s · %s", p.Company, p.Location, p.State, score)))
		b.WriteByte('\n')

		if i < len(postings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// sortPostings orders by score, unanalyzed last, then newest first.
func sortPostings(postings []model.PostingView) {
	slices.SortStableFunc(postings, func(a, b model.PostingView) int {
		switch {
		case a.Analysis != nil && b.Analysis == nil:
			return -1
		case a.Analysis == nil && b.Analysis != nil:
			return 1
		case a.Analysis != nil && a.Analysis.RelevanceScore != b.Analysis.RelevanceScore:
			if a.Analysis.RelevanceScore > b.Analysis.RelevanceScore {
				return -1
			}
			return 1
		}
		return b.DiscoveredAt.Compare(a.DiscoveredAt)
	})
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowser launches the split-pane postings browser. backend may be nil
// for a read-only view.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed
// esc to return to the picker.
func RunBrowser(postings []model.PostingView, backend Backend, prefs model.Preferences) (bool, error) {
	p := tea.NewProgram(newBrowserModel(postings, backend, prefs), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(browserModel)
	return final.wantQuit, nil
}
