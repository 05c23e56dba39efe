package tty

import (
	"context"

	"golang.org/x/sys/unix"
)

// ModemSignals are the levels of the six modem-control lines.
type ModemSignals struct {
	CTS bool // modem ready to take data
	DSR bool
	RI  bool
	DCD bool
	RTS bool // driven by the transport's flow controller
	DTR bool
}

// SignalMask selects modem inputs to watch.
type SignalMask int

const (
	SignalCTS SignalMask = 1 << iota
	SignalDSR
	SignalRI
	SignalDCD
)

// inputs maps each watchable input to its TIOCM bit.
var inputs = []struct {
	mask SignalMask
	bit  int
}{
	{SignalCTS, unix.TIOCM_CTS},
	{SignalDSR, unix.TIOCM_DSR},
	{SignalRI, unix.TIOCM_RI},
	{SignalDCD, unix.TIOCM_CAR},
}

func modemSignals(status int) ModemSignals {
	high := func(bit int) bool { return status&bit != 0 }
	return ModemSignals{
		CTS: high(unix.TIOCM_CTS),
		DSR: high(unix.TIOCM_DSR),
		RI:  high(unix.TIOCM_RI),
		DCD: high(unix.TIOCM_CAR),
		RTS: high(unix.TIOCM_RTS),
		DTR: high(unix.TIOCM_DTR),
	}
}

func getModemStatus(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCMGET)
}

// setModemBit raises or drops one of the outputs.
func setModemBit(fd, bit int, high bool) error {
	req := uint(unix.TIOCMBIC)
	if high {
		req = unix.TIOCMBIS
	}
	return unix.IoctlSetPointerInt(fd, req, bit)
}

func setDTR(fd int, high bool) error       { return setModemBit(fd, unix.TIOCM_DTR, high) }
func setRTSSignal(fd int, high bool) error { return setModemBit(fd, unix.TIOCM_RTS, high) }

// waitForCTSChange blocks in TIOCMIWAIT until CTS changes.
func waitForCTSChange(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCMIWAIT, unix.TIOCM_CTS)
}

func signalMaskToTIOCM(mask SignalMask) int {
	var bits int
	for _, in := range inputs {
		if mask&in.mask != 0 {
			bits |= in.bit
		}
	}
	return bits
}

// detectSignalChanges reports which inputs differ between two TIOCMGET
// samples. Outputs are never reported.
func detectSignalChanges(before, after int) SignalMask {
	var changed SignalMask
	for _, in := range inputs {
		if (before^after)&in.bit != 0 {
			changed |= in.mask
		}
	}
	return changed
}

// WaitSignalChange blocks until one of the masked inputs on the open line
// for id changes, returning the new levels and which inputs changed.
//
// The wait itself is a TIOCMIWAIT in a helper goroutine; when ctx ends first
// that goroutine stays parked until the next change or Close.
func (d *Driver) WaitSignalChange(ctx context.Context, id int, mask SignalMask) (ModemSignals, SignalMask, error) {
	if mask == 0 {
		return ModemSignals{}, 0, ErrInvalidSignalMask
	}
	l, err := d.line(id)
	if err != nil {
		return ModemSignals{}, 0, err
	}
	before, err := getModemStatus(l.fd)
	if err != nil {
		return ModemSignals{}, 0, err
	}

	type sample struct {
		status int
		err    error
	}
	done := make(chan sample, 1)
	go func() {
		if err := unix.IoctlSetInt(l.fd, unix.TIOCMIWAIT, signalMaskToTIOCM(mask)); err != nil {
			done <- sample{err: err}
			return
		}
		status, err := getModemStatus(l.fd)
		done <- sample{status, err}
	}()

	select {
	case s := <-done:
		if s.err != nil {
			return ModemSignals{}, 0, s.err
		}
		return modemSignals(s.status), detectSignalChanges(before, s.status), nil
	case <-ctx.Done():
		return ModemSignals{}, 0, ctx.Err()
	case <-l.stop:
		return ModemSignals{}, 0, ErrPortClosed
	}
}
