// Package styles holds the lipgloss styles shared by the cellport TUIs and
// report output.
package styles

import (
	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

func bold(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

func boxed(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1)
}

var (
	TitleStyle = bold(colors.Mauve).Background(colors.Surface0).Padding(0, 1)

	// Link state in the status bar.
	StatusConnectedStyle    = bold(colors.Green)
	StatusConnectingStyle   = bold(colors.Yellow)
	StatusDisconnectedStyle = bold(colors.Red)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = boxed(colors.Surface2)
	PanelStyle = boxed(colors.Surface1)
	LabelStyle = lipgloss.NewStyle().Foreground(colors.Subtext0)

	ErrorStyle   = bold(colors.Red)
	InfoStyle    = bold(colors.Mauve)
	SuccessStyle = bold(colors.Green)
)

// Signal renders a line indicator such as "RTS ●". Unwired lines are dimmed.
func Signal(name string, wired, asserted bool) string {
	switch {
	case !wired:
		return bold(colors.Unwired).Render(name + " -")
	case asserted:
		return bold(colors.Asserted).Render(name + " ●")
	default:
		return bold(colors.Deasserted).Render(name + " ○")
	}
}
