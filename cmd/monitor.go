/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/components"
	"github.com/allbin/go-cellport/internal/tui/keys"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/allbin/go-cellport/osal"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	refreshInterval = 100 * time.Millisecond
	burstSize       = 512
	minReadInterval = time.Millisecond
	maxReadInterval = time.Second
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch receive buffers and RTS flow control live",
	Long: `Run simulated modems against one or more ports and watch buffer occupancy,
RTS/CTS levels, statistics and events as they change.

Each modem streams unsolicited data at --rate bytes per second and stops while
the port holds RTS low. A reader drains each port every --read-interval. Slow
the reader down, or inject bursts, to watch the threshold and hysteresis work.

All ports post to one shared event queue.

Examples:
  cellport monitor
  cellport monitor --ports 3 --rate 20000 --rx-buffer 4096 --rts-threshold 1024
  cellport monitor --read-interval 200ms --hysteresis 64`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range []string{"ports", "rate", "read-interval", "read-size"} {
			if err := viper.BindPFlag("monitor."+key, cmd.Flags().Lookup(key)); err != nil {
				return err
			}
		}
		return bindLineFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := currentLineSettings()
		settings.Flow = "rtscts"
		return runMonitor(settings, monitorOptions{
			ports:        viper.GetInt("monitor.ports"),
			rate:         viper.GetInt("monitor.rate"),
			readInterval: viper.GetDuration("monitor.read-interval"),
			readSize:     viper.GetInt("monitor.read-size"),
		})
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addLineFlags(monitorCmd)
	monitorCmd.Flags().IntP("ports", "n", 2, "Number of simulated ports")
	monitorCmd.Flags().IntP("rate", "r", 11520, "Modem output per port in bytes per second")
	monitorCmd.Flags().Duration("read-interval", 50*time.Millisecond, "How often each reader drains its port")
	monitorCmd.Flags().Int("read-size", 256, "Bytes each reader takes per read")
}

type monitorOptions struct {
	ports        int
	rate         int
	readInterval time.Duration
	readSize     int
}

// bench is a simulated board with a modem and a reader on every port.
type bench struct {
	transport *cellport.Transport
	events    *cellport.EventQueue
	ids       []int
	ports     []*cellport.Port
	modems    []*simModem

	interval atomic.Duration
	paused   atomic.Bool
	readSize int
}

func newBench(settings lineSettings, opt monitorOptions) (*bench, error) {
	if opt.ports < 1 || opt.readSize < 1 {
		return nil, fmt.Errorf("ports %d, read size %d: %w", opt.ports, opt.readSize, cellport.ErrInvalidParameter)
	}
	portOpts, err := settings.options()
	if err != nil {
		return nil, err
	}
	events, err := cellport.NewEventQueue(cellport.DefaultEventQueueDepth * opt.ports)
	if err != nil {
		return nil, err
	}
	portOpts = append(portOpts, cellport.WithEventQueue(events))

	sim := cellport.NewSimDriver()
	b := &bench{
		transport: cellport.New(sim),
		events:    events,
		readSize:  opt.readSize,
	}
	b.interval.Store(opt.readInterval)

	for id := 0; id < opt.ports; id++ {
		port, _, err := b.transport.Init(id, portOpts...)
		if err != nil {
			b.Close()
			return nil, err
		}
		modem := newSimModem(sim.Line(id))
		modem.SetCTS(true)
		b.ids = append(b.ids, id)
		b.ports = append(b.ports, port)
		b.modems = append(b.modems, modem)
	}
	return b, nil
}

// Run streams and drains every port until ctx is done.
func (b *bench) Run(ctx context.Context, rate int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range b.ports {
		modem, port := b.modems[i], b.ports[i]
		g.Go(func() error { return modem.Stream(ctx, rate) })
		g.Go(func() error { return b.drain(ctx, port) })
	}
	return g.Wait()
}

func (b *bench) drain(ctx context.Context, port *cellport.Port) error {
	buf := make([]byte, b.readSize)
	for {
		if osal.Block(ctx, b.interval.Load()) != nil {
			return nil
		}
		if b.paused.Load() {
			continue
		}
		if _, err := port.Read(buf); err != nil {
			return err
		}
	}
}

func (b *bench) Stats() []cellport.Stats {
	out := make([]cellport.Stats, len(b.ports))
	for i, p := range b.ports {
		out[i] = p.Stats()
	}
	return out
}

func (b *bench) Close() error {
	for _, m := range b.modems {
		m.Stop()
	}
	return b.transport.Close()
}

type refreshMsg time.Time

type benchDoneMsg struct{ err error }

type monitorModel struct {
	bench     *bench
	rate      int
	cancel    context.CancelFunc
	gauge     *components.Gauge
	table     *components.StatsTable
	log       *components.Terminal
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.MonitorKeys
	stats     []cellport.Stats
	dataEvs   int
	err       error
	width     int
}

func runMonitor(settings lineSettings, opt monitorOptions) error {
	b, err := newBench(settings, opt)
	if err != nil {
		return err
	}
	defer b.Close()

	cfg := b.ports[0].Config()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &monitorModel{
		bench:     b,
		rate:      opt.rate,
		cancel:    cancel,
		gauge:     components.NewGauge(cfg.RxBufferSize, cfg.RTSThreshold),
		table:     components.NewStatsTable(80),
		log:       components.NewTerminal(80, 8),
		statusBar: components.NewStatusBar("cellport monitor", "sim"),
		help:      help.New(),
		keys:      keys.NewMonitorKeys(),
	}
	info := &components.LineInfo{
		Driver:       simDevice,
		BaudRate:     cfg.BaudRate,
		RxBufferSize: cfg.RxBufferSize,
		RTSThreshold: cfg.RTSThreshold,
		RTSWired:     true,
		CTSWired:     true,
	}
	m.statusBar.SetLineInfo(info)
	m.statusBar.SetConnected()

	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		p.Send(benchDoneMsg{err: b.Run(ctx, opt.rate)})
	}()
	go func() {
		for {
			ev, err := b.events.Receive(ctx)
			if err != nil {
				return
			}
			p.Send(components.EventMsg{Timestamp: time.Now(), Event: ev})
		}
	}()

	_, err = p.Run()
	cancel()
	if err == nil {
		err = m.err
	}
	return err
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *monitorModel) Init() tea.Cmd {
	return refresh()
}

func (m *monitorModel) selected() int {
	return m.table.Selected()
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.gauge.SetWidth(msg.Width)
		m.table.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		logHeight := msg.Height - 14 - len(m.bench.ports)
		if logHeight < 3 {
			logHeight = 3
		}
		m.log.SetSize(msg.Width, logHeight)

	case refreshMsg:
		m.stats = m.bench.Stats()
		m.table.SetStats(m.bench.ids, m.stats)
		s := m.stats[m.selected()]
		m.statusBar.UpdateSignals(bool(s.RTS), s.CTS)
		return m, refresh()

	case components.EventMsg:
		if msg.Event.Kind == cellport.EventDataAvailable {
			m.dataEvs++
			return m, nil
		}
		m.log.AddEvent(msg)

	case benchDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Pause):
			m.bench.paused.Toggle()
		case key.Matches(msg, m.keys.Faster):
			if d := m.bench.interval.Load() / 2; d >= minReadInterval {
				m.bench.interval.Store(d)
			}
		case key.Matches(msg, m.keys.Slower):
			if d := m.bench.interval.Load() * 2; d <= maxReadInterval {
				m.bench.interval.Store(d)
			}
		case key.Matches(msg, m.keys.Burst):
			if err := m.bench.modems[m.selected()].Burst(burstSize); err != nil {
				m.log.AddLine(styles.ErrorStyle.Render(err.Error()))
			}
		case key.Matches(msg, m.keys.ToggleCTS):
			modem := m.bench.modems[m.selected()]
			modem.SetCTS(!modem.CTS())
		case key.Matches(msg, m.keys.NextPort):
			m.table.Next()
		}
	}
	return m, nil
}

func (m *monitorModel) View() string {
	if m.stats == nil {
		return "Initializing..."
	}
	sel := m.selected()
	s := m.stats[sel]

	reader := fmt.Sprintf("reader every %v, %d B", m.bench.interval.Load(), m.bench.readSize)
	if m.bench.paused.Load() {
		reader = styles.ErrorStyle.Render("reader paused")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Left,
		styles.TitleStyle.Render(fmt.Sprintf("UART %d", m.bench.ids[sel])), " ",
		styles.Signal("RTS", true, bool(s.RTS)), "  ",
		styles.Signal("CTS", true, s.CTS), "  ",
		styles.LabelStyle.Render(fmt.Sprintf("modem %d B/s  %s  data events %d", m.rate, reader, m.dataEvs)),
	)

	body := []string{
		header,
		styles.PanelStyle.Render(m.gauge.View(s.Occupancy)),
		m.table.View(),
		styles.ContentBorderStyle.Render(m.log.View()),
	}
	if m.help.ShowAll {
		body = append(body, m.help.View(m.keys))
	} else {
		body = append(body, m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	body = append(body, m.statusBar.Render("MONITOR", "", true, time.Now().Format("15:04:05")))
	return lipgloss.JoinVertical(lipgloss.Left, body...)
}
