// Package cellport is the UART transport of a cellular modem porting layer.
//
// It sits between a driver that owns the physical UARTs and the AT/PPP
// layers above, and gives each UART a receive ring buffer, optional transmit
// buffering, RTS flow control and a queue of events.
//
// # Basic Usage
//
// Bring a UART up over a driver and read from it when DataAvailable arrives:
//
//	tr := cellport.New(drv)
//	defer tr.Close()
//
//	port, events, err := tr.Init(0,
//	    cellport.WithPins(0, 1),
//	    cellport.WithFlowControlPins(2, 3),
//	    cellport.WithRTSThreshold(256),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	port.Write([]byte("AT\r"))
//	for {
//	    ev, err := events.Receive(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if ev.Kind == cellport.EventDataAvailable {
//	        n, _ := port.Read(buf)
//	        handle(buf[:n])
//	    }
//	}
//
// Read never blocks: zero bytes is a valid result. ReadContext waits for
// data for layers that want a blocking call.
//
// # Flow Control
//
// With an RTS pin wired, RTS is de-asserted once the free space in the
// receive buffer drops to the threshold, and asserted again once Read has
// freed threshold plus hysteresis bytes. Hysteresis defaults to a quarter of
// the threshold. A CTS pin makes Write wait while the modem holds CTS low.
//
// # Events
//
// Each port posts to a bounded queue. DataAvailable is coalesced: at most
// one is queued per port until it is received. Full queues drop events and
// count them. Several ports may share one queue with WithEventQueue.
//
// # Drivers
//
//   - driver/tty drives Linux tty devices through termios and modem-control
//     ioctls.
//   - driver/bugst drives any port go.bug.st/serial can open.
//   - SimDriver is an in-memory board for tests and the cellport bench.
//
// # Error Handling
//
// Every error wraps one of the package's sentinel errors; use errors.Is.
// ErrorCode and CodeError convert to and from the porting layer's negative
// integer codes, which EventError events carry.
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - RxBufferSize: 1024
//   - TxBufferSize: 0 (Write hands bytes straight to the driver)
//   - EventQueueDepth: 20
//   - LockTimeout: 1 second
package cellport
