// Package tty is a cellport driver for Linux tty devices.
//
// Each UART id is mapped to a device path. Lines are opened raw 8N1 and
// non-blocking; a reader goroutine feeds received bytes to the port, RTS is
// driven with TIOCMBIS/TIOCMBIC and CTS edges are reported from TIOCMIWAIT.
//
//	drv, err := tty.New(tty.WithDevice(0, "/dev/ttyUSB2"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t := cellport.New(drv)
//	port, events, err := t.Init(0,
//	    cellport.WithPins(1, 2),
//	    cellport.WithFlowControlPins(3, 4),
//	    cellport.WithRTSThreshold(256),
//	)
//
// The package also lists candidate modem ports and can reset USB modems.
package tty
