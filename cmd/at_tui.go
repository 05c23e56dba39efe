/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"time"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/components"
	"github.com/allbin/go-cellport/internal/tui/keys"
	"github.com/allbin/go-cellport/internal/tui/models"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// signalPollInterval is how often the terminal refreshes RTS and CTS.
const signalPollInterval = 100 * time.Millisecond

type signalsMsg struct {
	rts, cts bool
}

type lineInfoMsg struct {
	info *components.LineInfo
}

// atModel is the interactive AT terminal
type atModel struct {
	*models.Session
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ATKeys
}

func runATTerminal(path string, settings lineSettings) error {
	m := &atModel{
		Session:   models.NewSession(path),
		terminal:  components.NewTerminal(0, 0), // sized by WindowSizeMsg
		statusBar: components.NewStatusBar("cellport at", path),
		input:     components.NewInput(),
		help:      help.New(),
		keys:      keys.NewATKeys(),
	}
	m.statusBar.SetConnecting()

	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		dev, err := openDevice(m.PortPath(), settings)
		if err != nil {
			p.Send(models.ConnectionStatusMsg{Error: err})
			return
		}
		m.Attach(dev.transport, dev.port)
		p.Send(lineInfoMsg{info: dev.lineInfo()})
		p.Send(models.ConnectionStatusMsg{Connected: true})

		ctx := m.Context()
		go func() {
			<-ctx.Done()
			if dev.modem != nil {
				dev.modem.Stop()
			}
		}()

		// Events: line faults and overflows go to the scrollback.
		go func() {
			for {
				ev, err := dev.events.Receive(ctx)
				if err != nil {
					return
				}
				if ev.Kind == cellport.EventError {
					p.Send(components.EventMsg{Timestamp: time.Now(), Event: ev})
				}
			}
		}()

		go func() {
			ticker := time.NewTicker(signalPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s := dev.port.Stats()
					p.Send(signalsMsg{rts: bool(s.RTS), cts: s.CTS})
				}
			}
		}()

		buf := make([]byte, 1024)
		for {
			n, err := dev.port.ReadContext(ctx, buf)
			if err != nil {
				return
			}
			p.Send(components.TrafficMsg{
				Timestamp: time.Now(),
				Data:      append([]byte(nil), buf[:n]...),
			})
		}
	}()

	_, err := p.Run()
	if cerr := m.Cleanup(); err == nil {
		err = cerr
	}
	return err
}

func (m *atModel) Init() tea.Cmd {
	return nil
}

// send writes the input line and reports progress as TrafficMsg updates.
func (m *atModel) send() tea.Cmd {
	port := m.Port()
	if port == nil || m.input.Value() == "" {
		return nil
	}
	data, err := m.input.Payload()
	if err != nil {
		m.terminal.AddLine(styles.ErrorStyle.Render("Invalid input: " + err.Error()))
		return nil
	}

	pending := components.TrafficMsg{Timestamp: time.Now(), Data: data, IsTX: true, Status: components.TxPending}
	m.AddRawData(pending)
	m.terminal.AddMessage(pending)
	m.input.Commit()

	// Write blocks while the modem holds CTS low.
	return func() tea.Msg {
		_, err := port.Write(data)
		done := components.TrafficMsg{Timestamp: time.Now(), Data: data, IsTX: true, Status: components.TxWritten}
		if err != nil {
			done.Status = components.TxError
		}
		return done
	}
}

func (m *atModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		const inputHeight, statusBarHeight = 3, 1
		m.terminal.SetSize(msg.Width, msg.Height-inputHeight-statusBarHeight)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		if msg.Error != nil {
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
		} else {
			m.statusBar.SetConnected()
		}

	case lineInfoMsg:
		m.statusBar.SetLineInfo(msg.info)

	case signalsMsg:
		m.statusBar.UpdateSignals(msg.rts, msg.cts)

	case components.EventMsg:
		m.terminal.AddEvent(msg)

	case components.TrafficMsg:
		if m.IsReady() {
			m.AddRawData(msg)
			m.terminal.AddMessage(msg)
		}

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, nil
			case key.Matches(msg, m.keys.Enter):
				return m, m.send()
			case key.Matches(msg, m.keys.Up):
				m.input.Prev()
				return m, nil
			case key.Matches(msg, m.keys.Down):
				m.input.Next()
				return m, nil
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleMode()
				return m, nil
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.Focus()
				return m, nil
			case key.Matches(msg, m.keys.Clear):
				m.ClearData()
				m.terminal.Clear()
			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll
			case key.Matches(msg, m.keys.ToggleHex):
				m.terminal.ToggleHex()
				m.terminal.Rerender(m.RawData())
			case key.Matches(msg, m.keys.ToggleASCII):
				m.terminal.ToggleASCII()
				m.terminal.Rerender(m.RawData())
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleMode()
			}
		}
	}

	if m.IsInInsertMode() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	cmds = append(cmds, m.terminal.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *atModel) View() string {
	content := "Initializing..."
	if m.IsReady() {
		content = m.terminal.View()
	}
	if m.help.ShowAll {
		content = lipgloss.JoinVertical(lipgloss.Left, content, m.help.View(m.keys))
	}

	mode := m.InputMode().String()
	input := m.input.View(m.IsInInsertMode())
	status := m.statusBar.Render(mode, m.input.Mode().String(), m.IsConnected(), time.Now().Format("15:04:05"))

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.ContentBorderStyle.Render(content),
		input,
		status,
	)
}
