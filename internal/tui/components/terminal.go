package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// scrollback caps the lines a Terminal keeps.
const scrollback = 2000

// Terminal is a scrolling log of line traffic and port events.
type Terminal struct {
	view   viewport.Model
	format *DataFormatter
	lines  []string
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		view:   viewport.New(width, height),
		format: NewDataFormatter(false, true),
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.view.Width, t.view.Height = width, height
}

func (t *Terminal) Width() int { return t.view.Width }

// Lines returns the rendered scrollback.
func (t *Terminal) Lines() []string { return t.lines }

// AddMessage appends bytes sent or received on the line.
func (t *Terminal) AddMessage(msg TrafficMsg) { t.AddLine(t.format.FormatMessage(msg)) }

// AddEvent appends a port event.
func (t *Terminal) AddEvent(msg EventMsg) { t.AddLine(t.format.FormatEvent(msg)) }

// AddLine appends a pre-rendered line, dropping the oldest past scrollback.
func (t *Terminal) AddLine(line string) {
	t.lines = append(t.lines, line)
	if over := len(t.lines) - scrollback; over > 0 {
		t.lines = t.lines[over:]
	}
	t.show()
}

// Rerender rebuilds the log from raw traffic after the display mode changed.
func (t *Terminal) Rerender(raw []TrafficMsg) {
	t.lines = t.format.FormatMessages(raw)
	t.show()
}

func (t *Terminal) Clear() {
	t.lines = nil
	t.view.SetContent("")
}

func (t *Terminal) ToggleHex()   { t.format.ToggleHex() }
func (t *Terminal) ToggleASCII() { t.format.ToggleASCII() }

func (t *Terminal) show() {
	t.view.SetContent(strings.Join(t.lines, "\n"))
	t.view.GotoBottom()
}

// Update passes window resizes to the viewport. Keys belong to the
// command's own bindings.
func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(tea.WindowSizeMsg); !ok {
		return nil
	}
	var cmd tea.Cmd
	t.view, cmd = t.view.Update(msg)
	return cmd
}

func (t *Terminal) View() string { return t.view.View() }
