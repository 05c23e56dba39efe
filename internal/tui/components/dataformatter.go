package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// TxStatus tracks a command through Port.Write
type TxStatus string

const (
	TxPending      TxStatus = "PENDING"
	TxTransmitting TxStatus = "TRANSMITTING"
	TxWritten      TxStatus = "WRITTEN"
	TxError        TxStatus = "ERROR"
)

// TrafficMsg is one chunk of bytes read from or written to a port
type TrafficMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    TxStatus // empty for RX
}

// EventMsg carries a port event into the TUI
type EventMsg struct {
	Timestamp time.Time
	Event     cellport.Event
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

var txLabels = map[TxStatus]struct {
	color lipgloss.Color
	text  string
}{
	TxPending:      {colors.Yellow, "TX ○"},
	TxTransmitting: {colors.Blue, "TX ⏸"}, // held by CTS
	TxWritten:      {colors.Green, "TX ✓"},
	TxError:        {colors.Red, "TX ✗"},
}

// FormatMessage renders one chunk of traffic in the current display mode.
func (df *DataFormatter) FormatMessage(msg TrafficMsg) string {
	indicator := lipgloss.NewStyle().Bold(true).Foreground(colors.Sky).Render("↙ RX")
	if msg.IsTX {
		label, ok := txLabels[msg.Status]
		if !ok {
			label.color, label.text = colors.Peach, "TX"
		}
		indicator = lipgloss.NewStyle().Bold(true).Foreground(label.color).Render("↗ " + label.text)
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(msg.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}
	return fmt.Sprintf("%s %s: %s", stamp(msg.Timestamp), indicator, strings.Join(parts, "  "))
}

// FormatEvent renders a port event line. Errors are red, the rest muted.
func (df *DataFormatter) FormatEvent(msg EventMsg) string {
	ev := msg.Event
	style := lipgloss.NewStyle().Foreground(colors.Subtext1)
	text := fmt.Sprintf("uart %d %s", ev.Port, ev.Kind)
	if ev.Kind == cellport.EventError {
		style = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)
		text = fmt.Sprintf("uart %d %v", ev.Port, ev.Err())
	}
	return fmt.Sprintf("%s %s", stamp(msg.Timestamp), style.Render("⚑ "+text))
}

func (df *DataFormatter) FormatMessages(messages []TrafficMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

// Printable replaces bytes outside printable ASCII with dots so modem
// output cannot inject terminal control sequences.
func Printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func stamp(t time.Time) string {
	return lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render("[" + t.Format("15:04:05.000") + "]")
}
