package cellport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-cellport/osal"
	"github.com/golang/glog"
	"go.uber.org/atomic"
)

// Port is one initialised UART: the receive ring, the optional transmit ring,
// RTS flow control and the event queue its notifications go to.
//
// Read and Write may be called from consumer tasks; the Handler methods are
// reserved for the driver's notification context. One task at a time may
// Read a given port.
type Port struct {
	id     int
	cfg    Config
	line   Line
	clock  osal.Clock
	events *EventQueue

	rx   *RingBuffer
	tx   *RingBuffer // nil for synchronous transmit
	flow *FlowController
	cts  *ctsMonitor // nil when CTS is not wired

	closing  atomic.Bool
	done     chan struct{} // closed when shutdown begins
	inflight sync.RWMutex  // Read and Write hold it shared, Deinit exclusive
	writeMu  sync.Mutex    // one writer at a time

	dataPending atomic.Bool   // a DataAvailable is queued
	readable    chan struct{} // coalesced RX wake-up for WaitReadable

	// TX ring drain
	drainer  *osal.Task
	txData   chan struct{} // coalesced: ring gained data
	txSpace  chan struct{} // coalesced: ring gained room or drained
	txQueued atomic.Int64  // bytes accepted by Write but not yet transmitted
	txErr    atomic.Error

	stats       portStats
	lastDropped int64 // consumer side only
}

type portStats struct {
	received  atomic.Int64
	dropped   atomic.Int64
	read      atomic.Int64
	written   atomic.Int64
	faults    atomic.Int64
	highWater atomic.Int64
}

// Stats is a snapshot of a port's counters.
type Stats struct {
	Received       int64 // bytes accepted into the RX ring
	Dropped        int64 // bytes lost to a full RX ring
	Read           int64 // bytes returned by Read
	Written        int64 // bytes handed to the driver or TX ring
	Faults         int64 // line faults reported by the driver
	RTSTransitions int64
	HighWater      int // largest RX occupancy seen
	Occupancy      int
	RTS            FlowState
	CTS            bool
	EventsPosted   int64 // on the port's queue, shared queues count all ports
	EventsDropped  int64
}

func newPort(id int, cfg Config, line Line, events *EventQueue, clock osal.Clock) *Port {
	p := &Port{
		id:       id,
		cfg:      cfg,
		line:     line,
		clock:    clock,
		events:   events,
		rx:       NewRingBuffer(cfg.RxBufferSize),
		readable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	var pin RTSSetter
	if cfg.RTS != NoPin {
		pin = line
	}
	p.flow = NewFlowController(cfg.RxBufferSize, cfg.RTSThreshold, cfg.hysteresis(), pin)

	if cfg.CTS != NoPin {
		p.cts = newCTSMonitor()
	}
	if cfg.TxBufferSize > 0 {
		p.tx = NewRingBuffer(cfg.TxBufferSize)
		p.txData = make(chan struct{}, 1)
		p.txSpace = make(chan struct{}, 1)
	}
	return p
}

// start brings the line up: initial RTS level, first CTS sample, the TX
// drain task and finally notifications.
func (p *Port) start() error {
	if err := p.flow.assertInitial(); err != nil {
		return fmt.Errorf("port %d: assert rts: %v: %w", p.id, err, ErrPlatform)
	}
	if p.cts != nil {
		level, err := p.line.CTS()
		if err != nil {
			return fmt.Errorf("port %d: sample cts: %v: %w", p.id, err, ErrPlatform)
		}
		p.cts.set(level)
	}
	if p.tx != nil {
		p.drainer = osal.Go(context.Background(), fmt.Sprintf("uart%d-tx", p.id), p.drainTx)
	}
	if err := p.line.Start(p); err != nil {
		p.stopDrainer()
		return fmt.Errorf("port %d: start line: %v: %w", p.id, err, ErrPlatform)
	}
	return nil
}

// ID returns the UART number.
func (p *Port) ID() int { return p.id }

// Config returns the configuration the port was initialised with.
func (p *Port) Config() Config { return p.cfg }

// Events returns the queue the port posts to.
func (p *Port) Events() *EventQueue { return p.events }

// enter registers an in-flight consumer call. It fails once shutdown began.
func (p *Port) enter() bool {
	if p.closing.Load() {
		return false
	}
	p.inflight.RLock()
	if p.closing.Load() {
		p.inflight.RUnlock()
		return false
	}
	return true
}

func (p *Port) leave() { p.inflight.RUnlock() }

func (p *Port) post(kind EventKind, code int32) {
	p.events.post(Event{Port: p.id, Kind: kind, Code: code, TimeMs: p.clock.NowMs()}, nil)
}

// ---------------- Handler (notification context) ----------------

// Receive buffers bytes arriving from the wire. Driver use only.
func (p *Port) Receive(b []byte) int {
	if p.closing.Load() || len(b) == 0 {
		return 0
	}
	n := p.rx.Push(b)
	p.stats.received.Add(int64(n))
	if n < len(b) {
		p.stats.dropped.Add(int64(len(b) - n))
		p.post(EventError, CodeOverflow)
	}

	occupancy := p.rx.Occupancy()
	for {
		hw := p.stats.highWater.Load()
		if int64(occupancy) <= hw || p.stats.highWater.CompareAndSwap(hw, int64(occupancy)) {
			break
		}
	}
	if _, _, err := p.flow.Track(p.rx); err != nil {
		p.post(EventError, CodePlatform)
	}

	if n > 0 {
		p.events.post(Event{Port: p.id, Kind: EventDataAvailable, TimeMs: p.clock.NowMs()}, &p.dataPending)
		select {
		case p.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// ClearToSend records a CTS level change. Driver use only.
func (p *Port) ClearToSend(asserted bool) {
	if p.cts != nil {
		p.cts.set(asserted)
	}
}

// Fault reports an asynchronous line error. Driver use only.
func (p *Port) Fault(err error) {
	p.stats.faults.Inc()
	code := ErrorCode(err)
	if code == CodeUnknown {
		code = CodeLineFault
	}
	p.post(EventError, code)
}

// ---------------- Consumer API ----------------

// Read copies whatever is buffered, up to len(buf) bytes, and returns at
// once. Zero bytes is a valid result, not an error.
func (p *Port) Read(buf []byte) (int, error) {
	if buf == nil {
		return 0, fmt.Errorf("port %d: nil buffer: %w", p.id, ErrInvalidParameter)
	}
	if !p.enter() {
		return 0, fmt.Errorf("port %d: %w", p.id, ErrNotInitialized)
	}
	defer p.leave()

	n := p.rx.Pop(buf)
	p.stats.read.Add(int64(n))

	// Re-checked on empty reads too: a de-assert decided before this pop
	// must not outlive the bytes it was decided for.
	state, changed, err := p.flow.Track(p.rx)
	if err != nil {
		glog.Warningf("port %d: re-assert rts: %v", p.id, err)
		p.post(EventError, CodePlatform)
	} else if changed {
		glog.V(2).Infof("port %d: rts %v after read", p.id, state)
	}

	if dropped := p.stats.dropped.Load(); dropped != p.lastDropped {
		glog.Warningf("port %d: receive buffer overflow, %d bytes lost", p.id, dropped-p.lastDropped)
		p.lastDropped = dropped
	}
	return n, nil
}

// WaitReadable blocks until the receive buffer holds data, the port shuts
// down or ctx is done.
func (p *Port) WaitReadable(ctx context.Context) error {
	for {
		if p.closing.Load() {
			return fmt.Errorf("port %d: %w", p.id, ErrNotInitialized)
		}
		if p.rx.Occupancy() > 0 {
			return nil
		}
		select {
		case <-p.readable:
			// coalesced; re-check
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadContext blocks until at least one byte is available, then reads up to
// len(buf) bytes. It is the timeout wrapper for layers that need one.
func (p *Port) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		n, err := p.Read(buf)
		if err != nil || n > 0 || len(buf) == 0 {
			return n, err
		}
		if err := p.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// Write blocks until every byte of data has been handed on: to the driver
// when the port has no TX buffer, or into the TX ring otherwise. If the line
// fails part way, the count of bytes already handed on is returned with the
// error.
func (p *Port) Write(data []byte) (int, error) {
	if data == nil {
		return 0, fmt.Errorf("port %d: nil buffer: %w", p.id, ErrInvalidParameter)
	}
	if !p.enter() {
		return 0, fmt.Errorf("port %d: %w", p.id, ErrNotInitialized)
	}
	defer p.leave()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var (
		sent int
		err  error
	)
	if p.tx == nil {
		sent, err = p.transmit(data)
		if err == nil && sent > 0 {
			p.post(EventTransmitComplete, CodeSuccess)
		}
	} else {
		sent, err = p.enqueueTx(data)
	}
	p.stats.written.Add(int64(sent))
	return sent, err
}

// transmit pushes data through the driver, waiting on CTS where wired.
func (p *Port) transmit(data []byte) (int, error) {
	sent := 0
	for sent < len(data) {
		if p.cts != nil {
			if err := p.cts.wait(0); err != nil {
				return sent, fmt.Errorf("port %d: %w", p.id, err)
			}
		}
		n, err := p.line.Transmit(data[sent:])
		sent += n
		if err != nil {
			if !p.closing.Load() {
				p.post(EventError, CodeLineFault)
			}
			return sent, fmt.Errorf("port %d: transmit after %d bytes: %v: %w", p.id, sent, err, ErrLineFault)
		}
	}
	return sent, nil
}

// enqueueTx copies data into the TX ring, blocking while the ring is full.
func (p *Port) enqueueTx(data []byte) (int, error) {
	sent := 0
	for sent < len(data) {
		if err := p.txErr.Load(); err != nil {
			return sent, err
		}
		if p.closing.Load() {
			return sent, fmt.Errorf("port %d: %w", p.id, ErrPortClosing)
		}
		// Writers are serialised, so free space can only grow under us.
		if n := min(len(data)-sent, p.tx.Free()); n > 0 {
			p.txQueued.Add(int64(n))
			sent += p.tx.Push(data[sent : sent+n])
			select {
			case p.txData <- struct{}{}:
			default:
			}
			continue
		}
		// Ring full: wait for the drain task to make room.
		select {
		case <-p.txSpace:
		case <-p.done:
		}
	}
	return sent, nil
}

// drainTx is the TX ring's consumer task.
func (p *Port) drainTx(ctx context.Context) {
	chunk := make([]byte, 256)
	for {
		n := p.tx.Pop(chunk)
		if n == 0 {
			select {
			case <-p.txData:
				continue
			case <-ctx.Done():
				return
			}
		}

		_, err := p.transmit(chunk[:n])
		if err != nil {
			p.txErr.Store(err)
			p.signalTxSpace()
			return
		}
		if p.txQueued.Sub(int64(n)) == 0 {
			p.post(EventTransmitComplete, CodeSuccess)
		}
		p.signalTxSpace()
	}
}

func (p *Port) signalTxSpace() {
	select {
	case p.txSpace <- struct{}{}:
	default:
	}
}

// Flush blocks until the TX ring has been handed to the driver. It returns
// at once for a port without a TX buffer.
func (p *Port) Flush() error {
	if p.tx == nil {
		return nil
	}
	if !p.enter() {
		return fmt.Errorf("port %d: %w", p.id, ErrNotInitialized)
	}
	defer p.leave()

	for {
		if err := p.txErr.Load(); err != nil {
			return err
		}
		if p.txQueued.Load() == 0 {
			return nil
		}
		select {
		case <-p.txSpace:
			// re-check
		case <-p.done:
			return fmt.Errorf("port %d: %w", p.id, ErrPortClosing)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// WaitClearToSend blocks until the modem asserts CTS, giving up with
// ErrTimeout after timeout. Ports without a CTS pin are always clear.
func (p *Port) WaitClearToSend(timeout time.Duration) error {
	if p.cts == nil {
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("port %d: timeout %v: %w", p.id, timeout, ErrInvalidParameter)
	}
	if err := p.cts.wait(timeout); err != nil {
		return fmt.Errorf("port %d: %w", p.id, err)
	}
	return nil
}

// Stats returns a snapshot of the port's counters.
func (p *Port) Stats() Stats {
	s := Stats{
		Received:       p.stats.received.Load(),
		Dropped:        p.stats.dropped.Load(),
		Read:           p.stats.read.Load(),
		Written:        p.stats.written.Load(),
		Faults:         p.stats.faults.Load(),
		RTSTransitions: p.flow.Transitions(),
		HighWater:      int(p.stats.highWater.Load()),
		RTS:            p.flow.State(),
		CTS:            true,
		EventsPosted:   p.events.Posted(),
		EventsDropped:  p.events.Dropped(),
	}
	if rx := p.rx; rx != nil {
		s.Occupancy = rx.Occupancy()
	}
	if p.cts != nil {
		s.CTS = p.cts.asserted.Load()
	}
	return s
}

// shutdown stops the port. In-flight Read and Write calls are unblocked and
// waited for before the buffers are released.
func (p *Port) shutdown() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	if p.cts != nil {
		p.cts.stop()
	}
	err := p.line.Close()
	p.stopDrainer()

	p.inflight.Lock()
	p.rx.Reset()
	if p.tx != nil {
		p.tx.Reset()
	}
	p.inflight.Unlock()

	if err != nil {
		return fmt.Errorf("port %d: close line: %v: %w", p.id, err, ErrPlatform)
	}
	return nil
}

func (p *Port) stopDrainer() {
	if p.drainer != nil {
		p.drainer.Stop()
		p.drainer.Wait()
	}
}

// ---------------- CTS ----------------

// ctsMonitor tracks the modem's CTS level and wakes blocked writers when it
// becomes active.
type ctsMonitor struct {
	asserted atomic.Bool
	activeCh chan struct{} // buffered so the notifier never blocks
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newCTSMonitor() *ctsMonitor {
	return &ctsMonitor{
		activeCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (c *ctsMonitor) set(asserted bool) {
	c.asserted.Store(asserted)
	if asserted {
		select {
		case c.activeCh <- struct{}{}:
		default:
			// Channel already has a signal, skip
		}
	}
}

func (c *ctsMonitor) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// wait blocks until CTS is active. A zero timeout waits indefinitely.
func (c *ctsMonitor) wait(timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		if c.asserted.Load() {
			return nil
		}
		select {
		case <-c.activeCh:
			// re-check
		case <-expired:
			return fmt.Errorf("waiting for cts: %w", ErrTimeout)
		case <-c.stopCh:
			return ErrPortClosing
		}
	}
}
