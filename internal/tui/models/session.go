package models

import (
	"context"
	"sync"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/components"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// Session is the state shared by TUI commands driving one transport port.
type Session struct {
	transport *cellport.Transport
	port      *cellport.Port
	portPath  string

	connected bool
	rawData   []components.TrafficMsg
	err       error
	ready     bool

	inputMode InputMode

	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewSession(portPath string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		portPath:  portPath,
		inputMode: InputModeNormal,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Session) Port() *cellport.Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Attach hands the session an initialized port. Cleanup deinitializes it.
func (s *Session) Attach(t *cellport.Transport, p *cellport.Port) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
	s.port = p
}

func (s *Session) PortPath() string {
	return s.portPath
}

func (s *Session) IsConnected() bool {
	return s.connected
}

func (s *Session) SetConnected(connected bool) {
	s.connected = connected
}

func (s *Session) Err() error {
	return s.err
}

func (s *Session) SetError(err error) {
	s.err = err
}

func (s *Session) IsReady() bool {
	return s.ready
}

func (s *Session) SetReady(ready bool) {
	s.ready = ready
}

func (s *Session) RawData() []components.TrafficMsg {
	return s.rawData
}

func (s *Session) AddRawData(msg components.TrafficMsg) {
	s.rawData = append(s.rawData, msg)
}

func (s *Session) ClearData() {
	s.rawData = nil
}

func (s *Session) InputMode() InputMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputMode
}

func (s *Session) SetInputMode(mode InputMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputMode = mode
}

func (s *Session) IsInInsertMode() bool {
	return s.InputMode() == InputModeInsert
}

func (s *Session) Context() context.Context {
	return s.ctx
}

// Cleanup stops the session's goroutines and deinitializes the port.
func (s *Session) Cleanup() error {
	s.cancel()

	s.mu.Lock()
	t, p := s.transport, s.port
	s.transport, s.port = nil, nil
	s.mu.Unlock()

	if t == nil || p == nil {
		return nil
	}
	return t.Deinit(p.ID())
}
