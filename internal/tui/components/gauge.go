package components

import (
	"fmt"

	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Gauge shows receive buffer occupancy with the RTS threshold marked below.
type Gauge struct {
	bar       progress.Model
	capacity  int
	threshold int // free bytes at which RTS drops, or ThresholdUnset
}

func NewGauge(capacity, threshold int) *Gauge {
	return &Gauge{
		bar: progress.New(
			progress.WithGradient(string(colors.GaugeLow), string(colors.GaugeHigh)),
			progress.WithoutPercentage(),
		),
		capacity:  capacity,
		threshold: threshold,
	}
}

func (g *Gauge) SetWidth(width int) {
	// Room for the label to the right.
	w := width - 20
	if w < 10 {
		w = 10
	}
	g.bar.Width = w
}

// Fraction is the share of the buffer in use.
func (g *Gauge) Fraction(occupancy int) float64 {
	if g.capacity <= 0 {
		return 0
	}
	f := float64(occupancy) / float64(g.capacity)
	if f > 1 {
		f = 1
	}
	return f
}

// marker returns the column under the bar where RTS is de-asserted, or -1.
func (g *Gauge) marker() int {
	if g.threshold < 0 || g.capacity <= 0 {
		return -1
	}
	limit := g.capacity - g.threshold
	return limit * (g.bar.Width - 1) / g.capacity
}

func (g *Gauge) View(occupancy int) string {
	label := styles.LabelStyle.Render(fmt.Sprintf(" %5d/%d", occupancy, g.capacity))
	bar := lipgloss.JoinHorizontal(lipgloss.Left, g.bar.ViewAs(g.Fraction(occupancy)), label)

	col := g.marker()
	if col < 0 {
		return bar
	}
	pad := lipgloss.NewStyle().Width(col).Render("")
	mark := lipgloss.NewStyle().Foreground(colors.Red).Render("▲ rts")
	return lipgloss.JoinVertical(lipgloss.Left, bar, pad+mark)
}
