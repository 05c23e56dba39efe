package components

import (
	"fmt"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
)

const (
	colPort     = "port"
	colReceived = "received"
	colRead     = "read"
	colWritten  = "written"
	colDropped  = "dropped"
	colHigh     = "high"
	colRTS      = "rts"
	colFlips    = "flips"
	colEvents   = "events"
)

// StatsTable lists the counters of every open port, one row each.
type StatsTable struct {
	table    table.Model
	selected int
}

func NewStatsTable(width int) *StatsTable {
	columns := []table.Column{
		table.NewColumn(colPort, "UART", 6),
		table.NewFlexColumn(colReceived, "RX", 1),
		table.NewFlexColumn(colRead, "Read", 1),
		table.NewFlexColumn(colWritten, "TX", 1),
		table.NewFlexColumn(colDropped, "Lost", 1),
		table.NewFlexColumn(colHigh, "Peak", 1),
		table.NewColumn(colRTS, "RTS", 5),
		table.NewColumn(colFlips, "Flips", 7),
		table.NewColumn(colEvents, "Events", 12),
	}

	t := table.New(columns).
		BorderRounded().
		WithBaseStyle(lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface1).
			Align(lipgloss.Right)).
		HeaderStyle(lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true)).
		HighlightStyle(lipgloss.NewStyle().Background(colors.Surface1)).
		Focused(true).
		WithTargetWidth(clampWidth(width))

	return &StatsTable{table: t}
}

func (st *StatsTable) SetWidth(width int) {
	st.table = st.table.WithTargetWidth(clampWidth(width))
}

// SetStats replaces the rows, keeping the highlighted port.
func (st *StatsTable) SetStats(ids []int, stats []cellport.Stats) {
	rows := make([]table.Row, len(ids))
	for i, id := range ids {
		rows[i] = statsRow(id, stats[i])
	}
	st.table = st.table.WithRows(rows)
	if st.selected >= len(rows) {
		st.selected = 0
	}
	st.table = st.table.WithHighlightedRow(st.selected)
}

// Next moves the highlight to the following port and returns its index.
func (st *StatsTable) Next() int {
	if n := st.table.TotalRows(); n > 0 {
		st.selected = (st.selected + 1) % n
		st.table = st.table.WithHighlightedRow(st.selected)
	}
	return st.selected
}

func (st *StatsTable) Selected() int {
	return st.selected
}

func (st *StatsTable) View() string {
	return st.table.View()
}

func statsRow(id int, s cellport.Stats) table.Row {
	dropped := table.NewStyledCell(s.Dropped, lipgloss.NewStyle())
	if s.Dropped > 0 {
		dropped = table.NewStyledCell(s.Dropped, lipgloss.NewStyle().Foreground(colors.Red).Bold(true))
	}
	rts := table.NewStyledCell("on", lipgloss.NewStyle().Foreground(colors.Asserted))
	if s.RTS != cellport.FlowAsserted {
		rts = table.NewStyledCell("off", lipgloss.NewStyle().Foreground(colors.Deasserted))
	}

	return table.NewRow(table.RowData{
		colPort:     fmt.Sprintf("%d", id),
		colReceived: s.Received,
		colRead:     s.Read,
		colWritten:  s.Written,
		colDropped:  dropped,
		colHigh:     s.HighWater,
		colRTS:      rts,
		colFlips:    s.RTSTransitions,
		colEvents:   fmt.Sprintf("%d/%d", s.EventsPosted, s.EventsDropped),
	})
}

func clampWidth(width int) int {
	if width < 60 {
		return 60
	}
	return width
}
