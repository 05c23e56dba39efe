package cellport

import (
	"fmt"
	"time"
)

// Pin identifies a board GPIO. NoPin marks an optional pin as not connected.
type Pin int32

// NoPin is used for CTS and RTS when the board has no flow control wiring.
const NoPin Pin = -1

// ThresholdUnset marks an RTS threshold that was never configured.
const ThresholdUnset = -1

// Build-time defaults for every port.
const (
	DefaultRxBufferSize    = 1024
	DefaultTxBufferSize    = 0 // zero means Write hands bytes straight to the driver
	DefaultEventQueueDepth = 20
	DefaultBaudRate        = 115200
	DefaultLockTimeout     = time.Second
)

// standardBaudRates lists the rates a UART line can be configured with.
var standardBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 38400, 57600, 115200, 230400, 460800, 500000, 576000, 921600,
	1000000, 1152000, 1500000, 2000000, 2500000, 3000000, 3500000, 4000000,
}

// Config holds the configuration of one UART port. It is supplied once to
// Transport.Init and is immutable for the life of the port.
type Config struct {
	TX       Pin
	RX       Pin
	CTS      Pin // input, asserted by the modem when it can take data
	RTS      Pin // output, asserted by us when we can take data
	BaudRate int

	// RTSThreshold is the free space, in bytes, at or below which RTS is
	// de-asserted. Required when RTS is wired, ignored otherwise.
	RTSThreshold int
	// Hysteresis is the extra free space needed before RTS is re-asserted.
	// Zero selects a quarter of the threshold.
	Hysteresis int

	RxBufferSize    int
	TxBufferSize    int
	EventQueueDepth int

	// EventQueue, when set, is an externally owned queue shared with other
	// ports. Otherwise Init allocates one of EventQueueDepth entries.
	EventQueue *EventQueue

	// LockTimeout bounds how long Init and Deinit wait for the port table.
	LockTimeout time.Duration
}

// Option is a functional option for configuring a port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults. Pins are left
// unset and must be provided with WithPins.
func DefaultConfig() Config {
	return Config{
		TX:              NoPin,
		RX:              NoPin,
		CTS:             NoPin,
		RTS:             NoPin,
		BaudRate:        DefaultBaudRate,
		RTSThreshold:    ThresholdUnset,
		RxBufferSize:    DefaultRxBufferSize,
		TxBufferSize:    DefaultTxBufferSize,
		EventQueueDepth: DefaultEventQueueDepth,
		LockTimeout:     DefaultLockTimeout,
	}
}

// WithPins sets the transmit and receive pins
func WithPins(tx, rx Pin) Option {
	return func(c *Config) error {
		if tx < 0 || rx < 0 || tx == rx {
			return fmt.Errorf("tx pin %d, rx pin %d: %w", tx, rx, ErrInvalidParameter)
		}
		c.TX = tx
		c.RX = rx
		return nil
	}
}

// WithFlowControlPins sets the CTS input and RTS output pins. Either may be
// NoPin; the two are independent.
func WithFlowControlPins(cts, rts Pin) Option {
	return func(c *Config) error {
		if cts < NoPin || rts < NoPin {
			return fmt.Errorf("cts pin %d, rts pin %d: %w", cts, rts, ErrInvalidParameter)
		}
		c.CTS = cts
		c.RTS = rts
		return nil
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if !validBaudRate(rate) {
			return fmt.Errorf("baud rate %d: %w", rate, ErrInvalidParameter)
		}
		c.BaudRate = rate
		return nil
	}
}

// WithRTSThreshold sets the free-space level at which RTS is de-asserted
func WithRTSThreshold(bytes int) Option {
	return func(c *Config) error {
		if bytes < 0 {
			return fmt.Errorf("rts threshold %d: %w", bytes, ErrInvalidParameter)
		}
		c.RTSThreshold = bytes
		return nil
	}
}

// WithHysteresis overrides the default re-assert margin
func WithHysteresis(bytes int) Option {
	return func(c *Config) error {
		if bytes < 1 {
			return fmt.Errorf("hysteresis %d: %w", bytes, ErrInvalidParameter)
		}
		c.Hysteresis = bytes
		return nil
	}
}

// WithRxBufferSize sets the receive ring capacity
func WithRxBufferSize(bytes int) Option {
	return func(c *Config) error {
		if bytes < 1 {
			return fmt.Errorf("rx buffer size %d: %w", bytes, ErrInvalidParameter)
		}
		c.RxBufferSize = bytes
		return nil
	}
}

// WithTxBufferSize sets the transmit ring capacity, zero for synchronous writes
func WithTxBufferSize(bytes int) Option {
	return func(c *Config) error {
		if bytes < 0 {
			return fmt.Errorf("tx buffer size %d: %w", bytes, ErrInvalidParameter)
		}
		c.TxBufferSize = bytes
		return nil
	}
}

// WithEventQueueDepth sets the depth of the queue Init allocates
func WithEventQueueDepth(depth int) Option {
	return func(c *Config) error {
		if depth < 1 {
			return fmt.Errorf("event queue depth %d: %w", depth, ErrInvalidParameter)
		}
		c.EventQueueDepth = depth
		return nil
	}
}

// WithEventQueue posts the port's events to q instead of a private queue
func WithEventQueue(q *EventQueue) Option {
	return func(c *Config) error {
		if q == nil {
			return fmt.Errorf("nil event queue: %w", ErrInvalidParameter)
		}
		c.EventQueue = q
		return nil
	}
}

// WithLockTimeout bounds how long Init and Deinit may block
func WithLockTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("lock timeout %v: %w", d, ErrInvalidParameter)
		}
		c.LockTimeout = d
		return nil
	}
}

// Validate checks the relationships between fields that individual options
// cannot see.
func (c Config) Validate() error {
	switch {
	case c.TX < 0 || c.RX < 0:
		return fmt.Errorf("tx and rx pins are required: %w", ErrInvalidParameter)
	case c.TX == c.RX:
		return fmt.Errorf("tx and rx share pin %d: %w", c.TX, ErrInvalidParameter)
	case c.CTS < NoPin || c.RTS < NoPin:
		return fmt.Errorf("bad flow control pin: %w", ErrInvalidParameter)
	case !validBaudRate(c.BaudRate):
		return fmt.Errorf("baud rate %d: %w", c.BaudRate, ErrInvalidParameter)
	case c.RxBufferSize < 1:
		return fmt.Errorf("rx buffer size %d: %w", c.RxBufferSize, ErrInvalidParameter)
	case c.TxBufferSize < 0:
		return fmt.Errorf("tx buffer size %d: %w", c.TxBufferSize, ErrInvalidParameter)
	case c.EventQueue == nil && c.EventQueueDepth < 1:
		return fmt.Errorf("event queue depth %d: %w", c.EventQueueDepth, ErrInvalidParameter)
	}

	if c.RTS != NoPin {
		if c.RTSThreshold == ThresholdUnset {
			return fmt.Errorf("rts pin %d without threshold: %w", c.RTS, ErrInvalidParameter)
		}
		if c.RTSThreshold > c.RxBufferSize {
			return fmt.Errorf("rts threshold %d exceeds rx buffer %d: %w",
				c.RTSThreshold, c.RxBufferSize, ErrInvalidParameter)
		}
		// Re-assert needs free >= threshold+hysteresis, which an empty
		// ring must be able to reach.
		if h := c.hysteresis(); c.RTSThreshold+h > c.RxBufferSize {
			return fmt.Errorf("rts threshold %d plus hysteresis %d exceeds rx buffer %d: %w",
				c.RTSThreshold, h, c.RxBufferSize, ErrInvalidParameter)
		}
	} else if c.RTSThreshold > 0 {
		return fmt.Errorf("rts threshold %d without rts pin: %w", c.RTSThreshold, ErrInvalidParameter)
	}
	return nil
}

// hysteresis returns the configured re-assert margin or the derived default.
func (c Config) hysteresis() int {
	if c.Hysteresis > 0 {
		return c.Hysteresis
	}
	if h := c.RTSThreshold / 4; h > 0 {
		return h
	}
	return 1
}

func validBaudRate(rate int) bool {
	for _, r := range standardBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}
