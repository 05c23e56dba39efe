package bugst

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/golang/glog"
	"go.bug.st/serial"
	"go.uber.org/atomic"
)

// readTimeout bounds how long the reader goes without noticing Close.
const readTimeout = 100 * time.Millisecond

// DefaultCTSPollInterval is how often CTS is sampled when the line has a CTS
// pin wired. go.bug.st/serial has no edge notification for modem lines.
const DefaultCTSPollInterval = 10 * time.Millisecond

var (
	ErrNoPort   = errors.New("no serial port mapped to uart")
	ErrPortBusy = errors.New("serial port already open")
	ErrClosed   = errors.New("serial port closed")
)

// portHandle is the subset of serial.Port the driver uses.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

// allow tests to override the port opener
var openPort = func(name string, mode *serial.Mode) (portHandle, error) {
	return serial.Open(name, mode)
}

// Driver opens UARTs through go.bug.st/serial, which works on every OS that
// package supports. Use driver/tty on Linux for TIOCMIWAIT CTS reporting.
type Driver struct {
	mu      sync.Mutex
	names   map[int]string
	open    map[int]*line
	ctsPoll time.Duration
}

var _ cellport.Driver = (*Driver)(nil)

type Option func(*Driver) error

// WithPort maps UART id to an OS port name such as /dev/ttyUSB2 or COM4.
func WithPort(id int, name string) Option {
	return func(d *Driver) error {
		if id < 0 || name == "" {
			return fmt.Errorf("uart %d port %q: %w", id, name, cellport.ErrInvalidParameter)
		}
		d.names[id] = name
		return nil
	}
}

// WithCTSPollInterval sets how often CTS is sampled.
func WithCTSPollInterval(d time.Duration) Option {
	return func(drv *Driver) error {
		if d <= 0 {
			return fmt.Errorf("cts poll interval %v: %w", d, cellport.ErrInvalidParameter)
		}
		drv.ctsPoll = d
		return nil
	}
}

func New(opts ...Option) (*Driver, error) {
	d := &Driver{
		names:   make(map[int]string),
		open:    make(map[int]*line),
		ctsPoll: DefaultCTSPollInterval,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Open implements cellport.Driver.
func (d *Driver) Open(id int, cfg cellport.Config) (cellport.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.names[id]
	if !ok {
		return nil, fmt.Errorf("uart %d: %w", id, ErrNoPort)
	}
	if _, busy := d.open[id]; busy {
		return nil, fmt.Errorf("uart %d (%s): %w", id, name, ErrPortBusy)
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	l := &line{
		id:       id,
		name:     name,
		port:     p,
		watchCTS: cfg.CTS != cellport.NoPin,
		ctsPoll:  d.ctsPoll,
		stop:     make(chan struct{}),
	}
	l.release = func() {
		d.mu.Lock()
		delete(d.open, id)
		d.mu.Unlock()
	}
	d.open[id] = l

	glog.V(1).Infof("uart %d: opened %s at %d baud", id, name, cfg.BaudRate)
	return l, nil
}

type line struct {
	id       int
	name     string
	port     portHandle
	watchCTS bool
	ctsPoll  time.Duration
	release  func()

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup

	hmu     sync.RWMutex
	handler cellport.Handler
}

func (l *line) Start(h cellport.Handler) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.hmu.Lock()
	l.handler = h
	l.hmu.Unlock()

	l.wg.Add(1)
	go l.readLoop()
	if l.watchCTS {
		l.wg.Add(1)
		go l.ctsLoop()
	}
	return nil
}

func (l *line) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 256)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if err != nil {
			if l.closed.Load() || isPortClosed(err) {
				return
			}
			if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
				continue
			}
			l.withHandler(func(h cellport.Handler) {
				h.Fault(fmt.Errorf("read %s: %w", l.name, err))
			})
			// Avoid spinning on a persistent error.
			select {
			case <-l.stop:
				return
			case <-time.After(readTimeout):
			}
			continue
		}
		if n == 0 {
			continue // read timeout
		}
		l.withHandler(func(h cellport.Handler) { h.Receive(buf[:n]) })
	}
}

func (l *line) ctsLoop() {
	defer l.wg.Done()

	last, err := l.CTS()
	if err != nil {
		glog.V(1).Infof("uart %d: CTS unavailable on %s: %v", l.id, l.name, err)
		return
	}
	ticker := time.NewTicker(l.ctsPoll)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cts, err := l.CTS()
		if err != nil || cts == last {
			continue
		}
		last = cts
		l.withHandler(func(h cellport.Handler) { h.ClearToSend(cts) })
	}
}

func (l *line) withHandler(fn func(cellport.Handler)) {
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	if l.handler != nil {
		fn(l.handler)
	}
}

func (l *line) Transmit(p []byte) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	n, err := l.port.Write(p)
	if err != nil {
		if l.closed.Load() || isPortClosed(err) {
			return n, ErrClosed
		}
		return n, fmt.Errorf("write %s: %w", l.name, err)
	}
	return n, nil
}

func (l *line) SetRTS(asserted bool) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.port.SetRTS(asserted)
}

func (l *line) CTS() (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	bits, err := l.port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	return bits.CTS, nil
}

// Close closes the port first so a Read or Write blocked inside
// go.bug.st/serial returns, then waits for the goroutines.
func (l *line) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(l.stop)
	err := l.port.Close()
	l.wg.Wait()

	l.hmu.Lock()
	l.handler = nil
	l.hmu.Unlock()

	l.release()
	glog.V(1).Infof("uart %d: closed %s", l.id, l.name)
	return err
}

func isPortClosed(err error) bool {
	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == serial.PortClosed
}
