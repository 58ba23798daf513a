package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobscout/internal/runs"
)

const (
	watchInterval = 500 * time.Millisecond
	recentEvents  = 8
)

var (
	watchTitleStyle = fg(colorAccent).Bold(true)
	countLabelStyle = fg(colorMuted).Width(18)
	eventStyle      = fg(colorText)
	failStyle       = fg(colorError)
	okStyle         = fg(colorOK)
)

// StatusFunc reads a run snapshot; runs.Registry.Get satisfies it.
type StatusFunc func(runID string) (runs.RunStatus, bool)

type runStatusMsg struct {
	status runs.RunStatus
	found  bool
}

type watcherModel struct {
	runID    string
	get      StatusFunc
	spinner  spinner.Model
	status   runs.RunStatus
	seen     bool
	err      error
	detached bool
	done     bool
}

func newWatcherModel(runID string, get StatusFunc) watcherModel {
	return watcherModel{
		runID:   runID,
		get:     get,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(watchTitleStyle)),
	}
}

func (m watcherModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll(0))
}

func (m watcherModel) poll(after time.Duration) tea.Cmd {
	get, id := m.get, m.runID
	read := func() tea.Msg {
		st, ok := get(id)
		return runStatusMsg{status: st, found: ok}
	}
	if after <= 0 {
		return read
	}
	return tea.Tick(after, func(time.Time) tea.Msg { return read() })
}

func (m watcherModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runStatusMsg:
		if !msg.found {
			m.err = fmt.Errorf("run %s is no longer tracked", m.runID)
			m.done = true
			return m, tea.Quit
		}
		m.status = msg.status
		m.seen = true
		if msg.status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.poll(watchInterval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// The run keeps going in the background.
			m.detached = true
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watcherModel) View() string {
	if !m.seen {
		return fmt.Sprintf("%s Waiting for run %s...\n", m.spinner.View(), m.runID)
	}

	var b strings.Builder
	st := m.status
	header := fmt.Sprintf("Run %s (%s)", st.RunID, st.Trigger)
	switch st.Status {
	case runs.StatusRunning:
		b.WriteString(m.spinner.View() + " " + watchTitleStyle.Render(header) + "  step: " + st.CurrentStep + "\n\n")
	case runs.StatusCompleted:
		b.WriteString(okStyle.Render("✓ "+header+" completed") + "\n\n")
	default:
		b.WriteString(failStyle.Render("✗ "+header+" failed: "+st.Error) + "\n\n")
	}

	c := Tally(st)
	for _, row := range []struct {
		label string
		n     int
	}{
		{"found", c.Found},
		{"duplicates", c.SkippedDuplicate},
		{"analyzed", c.Analyzed},
		{"analysis failed", c.AnalysisFailed},
		{"relevant", c.Relevant},
		{"persisted", c.Persisted},
		{"persist failed", c.PersistFailed},
		{"scrape errors", c.ScrapeErrors},
	} {
		b.WriteString("  " + countLabelStyle.Render(row.label) + fmt.Sprintf("%d\n", row.n))
	}

	events := st.Events()
	if len(events) > recentEvents {
		events = events[len(events)-recentEvents:]
	}
	if len(events) > 0 {
		b.WriteByte('\n')
	}
	for _, ev := range events {
		line := ev.Timestamp.Format("15:04:05") + "  " + Describe(ev)
		if ev.Kind() == runs.EventError || ev.Kind() == runs.EventScrapeFailed || ev.Kind() == runs.EventPersistFailed {
			b.WriteString("  " + failStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + eventStyle.Render(line) + "\n")
		}
	}

	if !m.done {
		b.WriteString("\n" + pickerHintStyle.Render("q detach (the run continues)"))
	}
	return b.String()
}

// Tally derives live counts from a run's events. Persisted is only known once
// the run has completed, at which point the reported counts win.
func Tally(st runs.RunStatus) runs.Counts {
	var c runs.Counts
	for _, ev := range st.Events() {
		switch d := ev.Data.(type) {
		case runs.Complete:
			return d.Counts
		case runs.JobFound:
			c.Found++
		case runs.ScrapeFailed:
			c.ScrapeErrors++
		case runs.Analyzed:
			c.Analyzed++
			if d.Error != "" {
				c.AnalysisFailed++
			} else if d.Relevant {
				c.Relevant++
			}
		case runs.PersistFailed:
			c.PersistFailed++
		}
	}
	return c
}

// Describe renders one event as a single line.
func Describe(ev runs.Event) string {
	switch d := ev.Data.(type) {
	case runs.JobFound:
		return fmt.Sprintf("found %s at %s", d.Title, d.Company)
	case runs.ScrapeFailed:
		return fmt.Sprintf("search %q failed: %s", d.Query, d.Error)
	case runs.Analyzed:
		if d.Score == nil {
			return fmt.Sprintf("analysis of %s failed: %s", d.ExternalID, d.Error)
		}
		verdict := "irrelevant"
		if d.Relevant {
			verdict = "relevant"
		}
		return fmt.Sprintf("scored %s %.2f (%s)", d.ExternalID, *d.Score, verdict)
	case runs.PersistFailed:
		return fmt.Sprintf("could not save %s: %s", d.ExternalID, d.Error)
	case runs.Complete:
		return fmt.Sprintf("complete: %d found, %d persisted", d.Counts.Found, d.Counts.Persisted)
	case runs.Failed:
		return "error: " + d.Error
	}
	return string(ev.Kind())
}

// WatchRun follows a run until it finishes or the user detaches. It renders
// inline (no alt screen) and returns the last snapshot seen.
func WatchRun(runID string, get StatusFunc) (runs.RunStatus, bool, error) {
	p := tea.NewProgram(newWatcherModel(runID, get))
	result, err := p.Run()
	if err != nil {
		return runs.RunStatus{}, false, err
	}
	final := result.(watcherModel)
	return final.status, final.detached, final.err
}
