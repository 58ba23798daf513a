package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every view (ANSI 256 colours).
const (
	colorAccent  = lipgloss.Color("39")
	colorSpinner = lipgloss.Color("33")
	colorDim     = lipgloss.Color("240")
	colorMuted   = lipgloss.Color("245")
	colorText    = lipgloss.Color("252")
	colorBright  = lipgloss.Color("15")
	colorSelect  = lipgloss.Color("24")
	colorBar     = lipgloss.Color("236")
	colorError   = lipgloss.Color("196")
	colorOK      = lipgloss.Color("42")
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func border(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}
