package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobscout/internal/model"
)

var (
	pickerTitleStyle    = fg(colorAccent).Bold(true).Padding(1, 0, 1, 2)
	pickerItemStyle     = lipgloss.NewStyle().PaddingLeft(4)
	pickerSelectedStyle = fg(colorAccent).Bold(true).PaddingLeft(2)
	pickerHintStyle     = fg(colorDim).Padding(1, 0, 0, 2)
)

// PickQuit is returned by RunStatePicker when the user quits.
const PickQuit = -2

// StateOption is one row in the state picker. A zero State means all postings.
type StateOption struct {
	State model.JobState
	Count int
}

func (o StateOption) label() string {
	name := string(o.State)
	if o.State == "" {
		name = "all postings"
	}
	return fmt.Sprintf("%s (%d)", name, o.Count)
}

// StateOptions builds the picker rows from store statistics, highest
// precedence first, skipping states with no postings.
func StateOptions(stats model.Stats) []StateOption {
	opts := []StateOption{{Count: stats.Total}}
	for _, st := range model.StatesByPrecedence() {
		if n := stats.ByState[st]; n > 0 {
			opts = append(opts, StateOption{State: st, Count: n})
		}
	}
	return opts
}

type pickerModel struct {
	options []StateOption
	cursor  int
	chosen  int // -1 = no choice yet, PickQuit = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.chosen = PickQuit
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Browse postings: select a state")
	s += "\n"

	for i, o := range m.options {
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+o.label()) + "\n"
		} else {
			s += pickerItemStyle.Render(o.label()) + "\n"
		}
	}

	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit")
	return s
}

// RunStatePicker shows an interactive state selector.
// Returns the index of the chosen option, or PickQuit if the user quit.
func RunStatePicker(options []StateOption) (int, error) {
	m := pickerModel{
		options: options,
		chosen:  -1,
	}

	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return PickQuit, err
	}

	final := result.(pickerModel)
	if final.chosen < 0 {
		return PickQuit, nil
	}
	return final.chosen, nil
}
