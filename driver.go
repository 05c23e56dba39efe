package cellport

// Driver claims physical UARTs on behalf of a Transport. Implementations
// live in the driver/ packages; SimDriver is an in-memory board.
type Driver interface {
	// Open claims UART id and configures it from cfg. Notifications must
	// not start until Line.Start is called.
	Open(id int, cfg Config) (Line, error)
}

// Line is one claimed UART.
type Line interface {
	// Start begins delivering notifications to h from the driver's
	// notification context.
	Start(h Handler) error
	// Transmit hands bytes to the hardware transmitter. It blocks until at
	// least one byte was accepted or the line failed, and may accept fewer
	// than len(p) bytes.
	Transmit(p []byte) (int, error)
	// SetRTS drives the RTS output. Only called when an RTS pin is wired.
	SetRTS(asserted bool) error
	// CTS samples the CTS input. Only called when a CTS pin is wired.
	CTS() (bool, error)
	// Close releases the UART. A Transmit blocked in the driver must return
	// with an error, and no Handler call may be made once Close returns.
	Close() error
}

// Handler receives notifications from a Line. Calls come from an
// interrupt-like context: they must not block and run concurrently with
// consumer tasks. *Port implements Handler.
type Handler interface {
	// Receive offers bytes read from the wire and returns how many were
	// buffered; the rest are lost.
	Receive(p []byte) int
	// ClearToSend reports a CTS level change.
	ClearToSend(asserted bool)
	// Fault reports an asynchronous line error such as framing or overrun.
	Fault(err error)
}
