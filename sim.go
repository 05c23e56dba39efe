package cellport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrSimClosed is returned by a SimLine after Close.
var ErrSimClosed = errors.New("simulated line closed")

// SimDriver is an in-memory board. Each opened UART is a SimLine whose far
// end is driven by the caller standing in for the modem.
type SimDriver struct {
	mu       sync.Mutex
	lines    map[int]*SimLine
	openErrs map[int]error
	chunk    int
	delay    time.Duration
}

// NewSimDriver returns a board with no lines claimed.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		lines:    make(map[int]*SimLine),
		openErrs: make(map[int]error),
	}
}

// SetPacing makes lines opened afterwards deliver injected bytes at most
// chunk at a time with delay between chunks, approximating a baud rate.
func (d *SimDriver) SetPacing(chunk int, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunk, d.delay = chunk, delay
}

// FailOpen makes the next Open of id fail with err.
func (d *SimDriver) FailOpen(id int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErrs[id] = err
}

// Open implements Driver.
func (d *SimDriver) Open(id int, cfg Config) (Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.openErrs[id]; ok {
		delete(d.openErrs, id)
		return nil, err
	}
	if l, ok := d.lines[id]; ok && !l.closed.Load() {
		return nil, fmt.Errorf("uart %d already claimed", id)
	}

	l := &SimLine{
		id:     id,
		cfg:    cfg,
		chunk:  d.chunk,
		delay:  d.delay,
		inject: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	l.cts.Store(true)
	l.txBudget.Store(-1)
	d.lines[id] = l
	return l, nil
}

// Line returns the most recently opened line for id, or nil.
func (d *SimDriver) Line(id int) *SimLine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines[id]
}

// SimLine is one simulated UART. Methods other than those of Line are the
// modem's side of the wire.
type SimLine struct {
	id    int
	cfg   Config
	chunk int
	delay time.Duration

	hmu     sync.RWMutex // held shared around Handler calls, exclusive by Close
	handler Handler
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	inject  chan []byte
	pending sync.WaitGroup

	cts      atomic.Bool
	echo     atomic.Bool
	txBudget atomic.Int64 // bytes Transmit accepts before failing, -1 for no limit
	txChunk  atomic.Int64 // max bytes per Transmit call, 0 for no limit
	hold     atomic.Bool
	release  chan struct{}
	rtsErr   atomic.Error

	mu         sync.Mutex
	tx         []byte
	rtsHistory []bool
}

// Start implements Line.
func (l *SimLine) Start(h Handler) error {
	if l.closed.Load() {
		return ErrSimClosed
	}
	l.hmu.Lock()
	l.handler = h
	l.hmu.Unlock()

	l.wg.Add(1)
	go l.deliverLoop()
	return nil
}

func (l *SimLine) deliverLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case p := <-l.inject:
			l.deliverPaced(p)
			l.pending.Done()
		}
	}
}

func (l *SimLine) deliverPaced(p []byte) {
	for len(p) > 0 {
		n := len(p)
		if l.chunk > 0 && n > l.chunk {
			n = l.chunk
		}
		l.Deliver(p[:n])
		p = p[n:]
		if l.delay > 0 && len(p) > 0 {
			select {
			case <-time.After(l.delay):
			case <-l.done:
				return
			}
		}
	}
}

// Deliver hands p to the port from the caller's goroutine, as the receive
// interrupt would, and returns how many bytes the port buffered.
func (l *SimLine) Deliver(p []byte) int {
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	if l.handler == nil || l.closed.Load() {
		return 0
	}
	return l.handler.Receive(p)
}

// Inject queues p for delivery from the line's notification goroutine.
func (l *SimLine) Inject(p []byte) error {
	if l.closed.Load() {
		return ErrSimClosed
	}
	b := append([]byte(nil), p...)
	l.pending.Add(1)
	select {
	case l.inject <- b:
		return nil
	case <-l.done:
		l.pending.Done()
		return ErrSimClosed
	}
}

// Settle waits until everything injected so far has been offered to the
// port.
func (l *SimLine) Settle() {
	l.pending.Wait()
}

// SetCTS changes the modem's CTS output.
func (l *SimLine) SetCTS(asserted bool) {
	l.cts.Store(asserted)
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	if l.handler != nil && !l.closed.Load() {
		l.handler.ClearToSend(asserted)
	}
}

// RaiseFault reports an asynchronous line error to the port.
func (l *SimLine) RaiseFault(err error) {
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	if l.handler != nil && !l.closed.Load() {
		l.handler.Fault(err)
	}
}

// SetEcho makes the modem send back every byte it receives.
func (l *SimLine) SetEcho(on bool) { l.echo.Store(on) }

// FailTransmitAfter makes Transmit fail once n more bytes have been sent.
// A negative n removes the limit.
func (l *SimLine) FailTransmitAfter(n int) { l.txBudget.Store(int64(n)) }

// LimitTransmit caps the bytes accepted per Transmit call. Zero removes the
// cap.
func (l *SimLine) LimitTransmit(n int) { l.txChunk.Store(int64(n)) }

// HoldTransmit blocks Transmit until ReleaseTransmit or Close.
func (l *SimLine) HoldTransmit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hold.Load() {
		l.release = make(chan struct{})
		l.hold.Store(true)
	}
}

// ReleaseTransmit lets held Transmit calls proceed.
func (l *SimLine) ReleaseTransmit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hold.CompareAndSwap(true, false) {
		close(l.release)
	}
}

// FailRTS makes SetRTS return err. A nil err clears the failure.
func (l *SimLine) FailRTS(err error) { l.rtsErr.Store(err) }

// Transmit implements Line.
func (l *SimLine) Transmit(p []byte) (int, error) {
	if l.hold.Load() {
		l.mu.Lock()
		release := l.release
		l.mu.Unlock()
		select {
		case <-release:
		case <-l.done:
		}
	}
	if l.closed.Load() {
		return 0, ErrSimClosed
	}

	n := len(p)
	if c := int(l.txChunk.Load()); c > 0 && n > c {
		n = c
	}
	var fault error
	if budget := l.txBudget.Load(); budget >= 0 {
		if int64(n) > budget {
			n = int(budget)
			fault = fmt.Errorf("uart %d: transmit fault", l.id)
		}
		l.txBudget.Sub(int64(n))
	}

	l.mu.Lock()
	l.tx = append(l.tx, p[:n]...)
	l.mu.Unlock()

	if l.echo.Load() && n > 0 {
		if err := l.Inject(p[:n]); err != nil {
			return n, err
		}
	}
	return n, fault
}

// Transmitted returns a copy of every byte the port has sent.
func (l *SimLine) Transmitted() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.tx...)
}

// SetRTS implements Line.
func (l *SimLine) SetRTS(asserted bool) error {
	if err := l.rtsErr.Load(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rtsHistory = append(l.rtsHistory, asserted)
	return nil
}

// RTS returns the level last driven on RTS. An undriven line reads asserted.
func (l *SimLine) RTS() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rtsHistory) == 0 {
		return true
	}
	return l.rtsHistory[len(l.rtsHistory)-1]
}

// RTSHistory returns every level driven on RTS, oldest first.
func (l *SimLine) RTSHistory() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.rtsHistory...)
}

// CTS implements Line.
func (l *SimLine) CTS() (bool, error) {
	if l.closed.Load() {
		return false, ErrSimClosed
	}
	return l.cts.Load(), nil
}

// Config returns the configuration the line was opened with.
func (l *SimLine) Config() Config { return l.cfg }

// Closed reports whether the line was released.
func (l *SimLine) Closed() bool { return l.closed.Load() }

// Close implements Line.
func (l *SimLine) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.done)
	l.wg.Wait()

	// Drop anything still queued for delivery.
	for {
		select {
		case <-l.inject:
			l.pending.Done()
			continue
		default:
		}
		break
	}

	l.hmu.Lock()
	l.handler = nil
	l.hmu.Unlock()
	return nil
}
