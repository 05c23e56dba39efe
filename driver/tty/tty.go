package tty

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/golang/glog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// pollInterval bounds how long the reader and a blocked Transmit go without
// noticing Close, in milliseconds.
const pollInterval = 100

// Driver claims Linux tty devices as cellport lines. UART ids are mapped to
// device paths with WithDevice.
type Driver struct {
	mu      sync.Mutex
	devices map[int]string
	lines   map[int]*line

	initialDTR *bool
	synced     bool
}

// Ensure Driver implements cellport.Driver at compile time
var _ cellport.Driver = (*Driver)(nil)

// Option is a functional option for configuring the driver
type Option func(*Driver) error

// WithDevice maps UART id to a tty device path
func WithDevice(id int, path string) Option {
	return func(d *Driver) error {
		if id < 0 || path == "" {
			return fmt.Errorf("uart %d device %q: %w", id, path, ErrInvalidConfig)
		}
		d.devices[id] = path
		return nil
	}
}

// WithInitialDTR sets the DTR level driven when a line is opened
func WithInitialDTR(state bool) Option {
	return func(d *Driver) error {
		d.initialDTR = &state
		return nil
	}
}

// WithSyncedWrites opens devices with O_SYNC so Transmit returns only once
// the kernel has pushed the bytes to the UART
func WithSyncedWrites() Option {
	return func(d *Driver) error {
		d.synced = true
		return nil
	}
}

// New returns a driver for the given device mapping.
func New(opts ...Option) (*Driver, error) {
	d := &Driver{
		devices: make(map[int]string),
		lines:   make(map[int]*line),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Device returns the path mapped to id.
func (d *Driver) Device(id int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path, ok := d.devices[id]
	return path, ok
}

// Open implements cellport.Driver.
func (d *Driver) Open(id int, cfg cellport.Config) (cellport.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, ok := d.devices[id]
	if !ok {
		return nil, fmt.Errorf("uart %d: %w", id, ErrDeviceNotFound)
	}
	if _, busy := d.lines[id]; busy {
		return nil, fmt.Errorf("uart %d: %w", id, ErrDeviceInUse)
	}

	flags := unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK
	if d.synced {
		flags |= unix.O_SYNC
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return nil, fmt.Errorf("open %s: %w", path, ErrDeviceNotFound)
		case errors.Is(err, unix.EACCES):
			return nil, fmt.Errorf("open %s: %w", path, ErrPermissionDenied)
		case errors.Is(err, unix.EBUSY):
			return nil, fmt.Errorf("open %s: %w", path, ErrDeviceInUse)
		}
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}

	if err := configurePort(fd, cfg.BaudRate); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if d.initialDTR != nil {
		if err := setDTR(fd, *d.initialDTR); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set initial DTR: %v", err)
		}
	}

	l := &line{
		id:          id,
		path:        path,
		fd:          fd,
		watchCTS:    cfg.CTS != cellport.NoPin,
		stop:        make(chan struct{}),
		modemStatus: getModemStatus,
		waitCTS:     waitForCTSChange,
	}
	l.release = func() {
		d.mu.Lock()
		delete(d.lines, id)
		d.mu.Unlock()
	}
	d.lines[id] = l

	glog.V(1).Infof("uart %d: opened %s at %d baud", id, path, cfg.BaudRate)
	return l, nil
}

// Signals returns the modem signal levels of the open line for id.
func (d *Driver) Signals(id int) (ModemSignals, error) {
	l, err := d.line(id)
	if err != nil {
		return ModemSignals{}, err
	}
	return l.signals()
}

func (d *Driver) line(id int) (*line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lines[id]
	if !ok {
		return nil, fmt.Errorf("uart %d: %w", id, ErrPortClosed)
	}
	return l, nil
}

// line is one open tty. The fd is non-blocking; the reader goroutine and
// Transmit poll it so Close is noticed within pollInterval.
type line struct {
	id       int
	path     string
	fd       int
	watchCTS bool
	release  func()

	closed atomic.Bool
	stop   chan struct{}
	io     sync.RWMutex // Transmit holds it shared, Close exclusive
	wg     sync.WaitGroup

	// The CTS watcher runs on its own dup of fd. ctsMu orders its park in
	// TIOCMIWAIT against Close deciding whether to wait for it.
	ctsMu     sync.Mutex
	ctsParked bool
	ctsDone   chan struct{}

	modemStatus func(fd int) (int, error)
	waitCTS     func(fd int) error

	hmu     sync.RWMutex // guards handler
	handler cellport.Handler
}

func (l *line) Start(h cellport.Handler) error {
	if l.closed.Load() {
		return ErrPortClosed
	}
	ctsFd := -1
	if l.watchCTS {
		fd, err := unix.Dup(l.fd)
		if err != nil {
			return fmt.Errorf("dup %s for cts: %w", l.path, err)
		}
		ctsFd = fd
	}

	l.hmu.Lock()
	l.handler = h
	l.hmu.Unlock()

	l.wg.Add(1)
	go l.readLoop()
	if ctsFd >= 0 {
		l.ctsDone = make(chan struct{})
		go l.ctsLoop(ctsFd)
	}
	return nil
}

func (l *line) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 256)
	for !l.closed.Load() {
		n, err := unix.Read(l.fd, buf)
		switch {
		case err == unix.EAGAIN || err == unix.EINTR || (err == nil && n == 0):
			l.poll(unix.POLLIN)
		case err != nil:
			if l.closed.Load() {
				return
			}
			l.fault(fmt.Errorf("read %s: %w", l.path, err))
			l.poll(unix.POLLIN)
		default:
			l.hmu.RLock()
			if l.handler != nil {
				l.handler.Receive(buf[:n])
			}
			l.hmu.RUnlock()
		}
	}
}

// ctsLoop reports CTS edges on fd, a dup it owns and closes on exit. It uses
// TIOCMIWAIT and falls back to sampling on drivers that do not support it.
// Close waits for the loop except while it is parked in TIOCMIWAIT; the loop
// then exits on the next CTS edge.
func (l *line) ctsLoop(fd int) {
	defer close(l.ctsDone)
	defer unix.Close(fd)

	last, err := l.modemStatus(fd)
	if err != nil {
		return
	}
	useWait := true
	for {
		if useWait {
			if !l.park() {
				return
			}
			err := l.waitCTS(fd)
			l.unpark()
			if err != nil {
				if l.closed.Load() {
					return
				}
				glog.V(1).Infof("uart %d: TIOCMIWAIT unsupported on %s, sampling CTS: %v", l.id, l.path, err)
				useWait = false
				continue
			}
		} else {
			select {
			case <-l.stop:
				return
			case <-time.After(pollInterval * time.Millisecond):
			}
		}
		if l.closed.Load() {
			return
		}

		status, err := l.modemStatus(fd)
		if err != nil {
			continue
		}
		if detectSignalChanges(last, status)&SignalCTS != 0 {
			l.hmu.RLock()
			if l.handler != nil {
				l.handler.ClearToSend(status&unix.TIOCM_CTS != 0)
			}
			l.hmu.RUnlock()
		}
		last = status
	}
}

// park marks the CTS loop as about to block in TIOCMIWAIT. It fails once the
// line is closed.
func (l *line) park() bool {
	l.ctsMu.Lock()
	defer l.ctsMu.Unlock()
	if l.closed.Load() {
		return false
	}
	l.ctsParked = true
	return true
}

func (l *line) unpark() {
	l.ctsMu.Lock()
	l.ctsParked = false
	l.ctsMu.Unlock()
}

func (l *line) fault(err error) {
	l.hmu.RLock()
	defer l.hmu.RUnlock()
	if l.handler != nil {
		l.handler.Fault(err)
	}
}

// poll waits up to pollInterval for events on the fd.
func (l *line) poll(events int16) {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: events}}
	_, _ = unix.Poll(fds, pollInterval)
}

func (l *line) Transmit(p []byte) (int, error) {
	l.io.RLock()
	defer l.io.RUnlock()

	for {
		if l.closed.Load() {
			return 0, ErrPortClosed
		}
		n, err := unix.Write(l.fd, p)
		switch {
		case err == unix.EAGAIN || err == unix.EINTR:
			l.poll(unix.POLLOUT)
		case err != nil:
			return 0, fmt.Errorf("write %s: %w", l.path, err)
		case n > 0 || len(p) == 0:
			return n, nil
		}
	}
}

func (l *line) SetRTS(asserted bool) error {
	if l.closed.Load() {
		return ErrPortClosed
	}
	return setRTSSignal(l.fd, asserted)
}

func (l *line) CTS() (bool, error) {
	if l.closed.Load() {
		return false, ErrPortClosed
	}
	status, err := getModemStatus(l.fd)
	if err != nil {
		return false, err
	}
	return status&unix.TIOCM_CTS != 0, nil
}

func (l *line) signals() (ModemSignals, error) {
	if l.closed.Load() {
		return ModemSignals{}, ErrPortClosed
	}
	status, err := getModemStatus(l.fd)
	if err != nil {
		return ModemSignals{}, err
	}
	return modemSignals(status), nil
}

func (l *line) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrPortClosed
	}
	close(l.stop)
	l.wg.Wait()

	l.ctsMu.Lock()
	parked := l.ctsParked
	l.ctsMu.Unlock()
	if l.ctsDone != nil && !parked {
		<-l.ctsDone
	}

	l.io.Lock()
	err := unix.Close(l.fd)
	l.io.Unlock()

	l.hmu.Lock()
	l.handler = nil
	l.hmu.Unlock()

	l.release()
	glog.V(1).Infof("uart %d: closed %s", l.id, l.path)
	return err
}

// configurePort puts the tty in raw 8N1 mode at the given rate. RTS and CTS
// are driven by the transport, so CRTSCTS stays off.
func configurePort(fd int, rate int) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %v", err)
	}

	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	// Non-blocking fd: reads return whatever is there.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(rate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %v", err)
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}
