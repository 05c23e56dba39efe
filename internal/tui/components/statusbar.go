package components

import (
	"fmt"

	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// LineInfo is the port configuration and live line state shown in the bar
type LineInfo struct {
	Driver       string
	BaudRate     int
	RxBufferSize int
	RTSThreshold int
	RTSWired     bool
	CTSWired     bool
	RTS          bool
	CTS          bool
}

type StatusBar struct {
	title    string
	portPath string
	status   string
	err      error
	width    int
	line     *LineInfo
}

func NewStatusBar(title, portPath string) *StatusBar {
	return &StatusBar{
		title:    title,
		portPath: portPath,
		status:   "Initializing...",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetLineInfo(info *LineInfo) {
	sb.line = info
}

// UpdateSignals records the latest RTS and CTS levels
func (sb *StatusBar) UpdateSignals(rts, cts bool) {
	if sb.line != nil {
		sb.line.RTS = rts
		sb.line.CTS = cts
	}
}

func (sb *StatusBar) SetConnecting() {
	sb.status = "Connecting..."
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.status = "Connected"
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	sb.err = err
	if err != nil {
		sb.status = fmt.Sprintf("Connection failed: %v", err)
		return
	}
	sb.status = "Disconnected"
}

func (sb *StatusBar) Status() (string, error) {
	return sb.status, sb.err
}

// Render draws the bar: mode, port and connection indicator on the left,
// line settings, flow signals and the clock on the right.
func (sb *StatusBar) Render(mode, sendingMode string, connected bool, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeBg := colors.Blue
	if mode == "INSERT" {
		modeBg = colors.Green
	}
	modeView := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(mode)

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	var connIndicator string
	var connStyle lipgloss.Style
	switch {
	case sb.err != nil:
		connStyle = styles.StatusDisconnectedStyle
		connIndicator = "✗"
	case connected:
		connStyle = styles.StatusConnectedStyle
		connIndicator = "●"
	case sb.status == "Connecting...":
		connStyle = styles.StatusConnectingStyle
		connIndicator = "○"
	default:
		connStyle = styles.StatusDisconnectedStyle
		connIndicator = "○"
	}
	connectionIndicator := connStyle.Render(connIndicator)

	var details string
	if sb.line != nil {
		details = fmt.Sprintf("⚡ %s %d baud 8N1 rx %d",
			sb.line.Driver, sb.line.BaudRate, sb.line.RxBufferSize)
		if sb.line.RTSWired {
			details += fmt.Sprintf(" thr %d", sb.line.RTSThreshold)
		}
	} else {
		details = "⚡ uart"
	}
	connectionDetails := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(details)

	var signals string
	if sb.line != nil {
		signals = lipgloss.JoinHorizontal(lipgloss.Left,
			styles.Signal("RTS", sb.line.RTSWired, sb.line.RTS), " ",
			styles.Signal("CTS", sb.line.CTSWired, sb.line.CTS))
	}

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	leftParts := []string{modeView, port, connectionIndicator}
	if sendingMode != "" && mode == "INSERT" {
		leftParts = append(leftParts, lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	leftParts = append(leftParts, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, leftParts...)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, connectionDetails, signals, divider, clock)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
