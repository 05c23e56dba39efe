package components

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const historySize = 100

// SendingMode selects how the input line is encoded for the wire.
type SendingMode int

const (
	// SendingModeAT sends the line as typed with a trailing CR.
	SendingModeAT SendingMode = iota
	// SendingModeHex sends the bytes spelled out in hex digits.
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "AT"
}

func (s SendingMode) placeholder() string {
	if s == SendingModeHex {
		return "hex bytes, e.g. 1A or 41 54 0D"
	}
	return "AT command, Enter sends with CR"
}

// Input is the command line of the AT terminal.
type Input struct {
	field textinput.Model
	mode  SendingMode
	width int

	history []string
	cursor  int    // index into history while browsing, -1 otherwise
	draft   string // line being typed when browsing started
}

func NewInput() *Input {
	field := textinput.New()
	field.Prompt = ""
	field.CharLimit = 512
	field.Placeholder = SendingModeAT.placeholder()
	field.SetValue("AT")
	return &Input{field: field, cursor: -1}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	i.field.Width = max(width-6, 20)
}

func (i *Input) Focus()                { i.field.Focus() }
func (i *Input) Blur()                 { i.field.Blur() }
func (i *Input) Value() string         { return i.field.Value() }
func (i *Input) SetValue(value string) { i.field.SetValue(value) }
func (i *Input) Mode() SendingMode     { return i.mode }

// ToggleMode switches between AT and hex entry.
func (i *Input) ToggleMode() {
	i.mode = 1 - i.mode
	i.field.Placeholder = i.mode.placeholder()
}

// Payload encodes the current line for the wire.
func (i *Input) Payload() ([]byte, error) {
	value := i.field.Value()
	if i.mode == SendingModeHex {
		return ParseHex(value)
	}
	if strings.TrimSpace(value) == "" {
		return nil, errors.New("empty command")
	}
	return []byte(value + "\r"), nil
}

// Commit records the current line in the history and clears it.
func (i *Input) Commit() {
	line := strings.TrimSpace(i.field.Value())
	i.field.SetValue("")
	i.cursor, i.draft = -1, ""
	if line == "" || (len(i.history) > 0 && i.history[len(i.history)-1] == line) {
		return
	}
	i.history = append(i.history, line)
	if len(i.history) > historySize {
		i.history = i.history[1:]
	}
}

// Prev steps back through the history, remembering the unsent line.
func (i *Input) Prev() {
	switch {
	case len(i.history) == 0:
		return
	case i.cursor == -1:
		i.draft = i.field.Value()
		i.cursor = len(i.history) - 1
	case i.cursor > 0:
		i.cursor--
	}
	i.field.SetValue(i.history[i.cursor])
}

// Next steps forward through the history, restoring the unsent line past
// the newest entry.
func (i *Input) Next() {
	if i.cursor == -1 {
		return
	}
	if i.cursor++; i.cursor < len(i.history) {
		i.field.SetValue(i.history[i.cursor])
		return
	}
	i.cursor = -1
	i.field.SetValue(i.draft)
	i.draft = ""
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.field, cmd = i.field.Update(msg)
	return i, cmd
}

// View renders the line; outside insert mode it shows how to start typing.
func (i *Input) View(insert bool) string {
	prompt := lipgloss.NewStyle().Bold(true).Foreground(colors.Green).Render(">")
	if i.mode == SendingModeHex {
		prompt = lipgloss.NewStyle().Bold(true).Foreground(colors.Yellow).Render("#")
	}

	body := lipgloss.NewStyle().Foreground(colors.Overlay0).Render("press i to type a command")
	box := styles.InputStyle.Width(max(i.width-4, 10))
	if insert {
		body = i.field.View()
		box = box.BorderForeground(colors.Green)
	}
	return box.Render(prompt + " " + body)
}

// ParseHex decodes hex digit pairs, ignoring spaces.
func ParseHex(s string) ([]byte, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if digits == "" {
		return nil, errors.New("empty input")
	}
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(digits))
	}
	out := make([]byte, 0, len(digits)/2)
	for k := 0; k < len(digits); k += 2 {
		b, err := strconv.ParseUint(digits[k:k+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s'", digits[k:k+2])
		}
		out = append(out, byte(b))
	}
	return out, nil
}
