/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/driver/bugst"
	"github.com/allbin/go-cellport/driver/tty"
	"github.com/allbin/go-cellport/internal/tui/components"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// deviceUART is the id a device command opens its port under. Host tty
// lines carry their own handshake wiring, so the pin numbers below only
// mark a signal as connected.
const deviceUART = 0

const (
	pinTX cellport.Pin = iota
	pinRX
	pinCTS
	pinRTS
)

// simDevice selects the simulated modem in place of a device path.
const simDevice = "sim"

// lineSettings are the port settings shared by every device command.
type lineSettings struct {
	Driver       string
	BaudRate     int
	RxBuffer     int
	TxBuffer     int
	Flow         string
	RTSThreshold int
	Hysteresis   int
	DTR          bool
}

var lineFlagKeys = []string{"driver", "baud", "rx-buffer", "tx-buffer", "flow", "rts-threshold", "hysteresis", "dtr"}

func addLineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("driver", "tty", "UART driver: tty (Linux termios) or bugst (go.bug.st/serial)")
	f.IntP("baud", "b", cellport.DefaultBaudRate, "Baud rate")
	f.Int("rx-buffer", cellport.DefaultRxBufferSize, "Receive ring size in bytes")
	f.Int("tx-buffer", cellport.DefaultTxBufferSize, "Transmit ring size in bytes (0 = synchronous writes)")
	f.StringP("flow", "f", "none", "Hardware flow control: none, cts, rts, rtscts")
	f.Int("rts-threshold", 256, "Free receive space at which RTS is de-asserted")
	f.Int("hysteresis", 0, "Extra free space before RTS is re-asserted (0 = threshold/4)")
	f.Bool("dtr", false, "Assert DTR on open (tty driver)")
}

// bindLineFlags binds the line flags of cmd to viper. It runs in PreRunE so
// the last command to run owns the shared keys.
func bindLineFlags(cmd *cobra.Command) error {
	for _, key := range lineFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

func currentLineSettings() lineSettings {
	return lineSettings{
		Driver:       viper.GetString("driver"),
		BaudRate:     viper.GetInt("baud"),
		RxBuffer:     viper.GetInt("rx-buffer"),
		TxBuffer:     viper.GetInt("tx-buffer"),
		Flow:         viper.GetString("flow"),
		RTSThreshold: viper.GetInt("rts-threshold"),
		Hysteresis:   viper.GetInt("hysteresis"),
		DTR:          viper.GetBool("dtr"),
	}
}

// options turns the settings into port options.
func (s lineSettings) options() ([]cellport.Option, error) {
	opts := []cellport.Option{
		cellport.WithPins(pinTX, pinRX),
		cellport.WithBaudRate(s.BaudRate),
		cellport.WithRxBufferSize(s.RxBuffer),
		cellport.WithTxBufferSize(s.TxBuffer),
	}

	cts, rts := cellport.NoPin, cellport.NoPin
	switch strings.ToLower(s.Flow) {
	case "", "none":
	case "cts":
		cts = pinCTS
	case "rts":
		rts = pinRTS
	case "rtscts":
		cts, rts = pinCTS, pinRTS
	default:
		return nil, fmt.Errorf("unknown flow control %q (valid: none, cts, rts, rtscts)", s.Flow)
	}
	opts = append(opts, cellport.WithFlowControlPins(cts, rts))
	if rts != cellport.NoPin {
		opts = append(opts, cellport.WithRTSThreshold(s.RTSThreshold))
		if s.Hysteresis > 0 {
			opts = append(opts, cellport.WithHysteresis(s.Hysteresis))
		}
	}
	return opts, nil
}

func (s lineSettings) driver(path string) (cellport.Driver, error) {
	switch strings.ToLower(s.Driver) {
	case "tty":
		opts := []tty.Option{tty.WithDevice(deviceUART, path)}
		if s.DTR {
			opts = append(opts, tty.WithInitialDTR(true))
		}
		return tty.New(opts...)
	case "bugst":
		return bugst.New(bugst.WithPort(deviceUART, path))
	default:
		return nil, fmt.Errorf("unknown driver %q (valid: tty, bugst)", s.Driver)
	}
}

// device is an initialized port on a transport of its own.
type device struct {
	transport *cellport.Transport
	port      *cellport.Port
	events    *cellport.EventQueue
	modem     *simModem // set for the simulated device
	driver    string
}

// openDevice initializes a port on path, or on a simulated modem when path
// is "sim".
func openDevice(path string, s lineSettings) (*device, error) {
	opts, err := s.options()
	if err != nil {
		return nil, err
	}

	d := &device{driver: s.Driver}
	var drv cellport.Driver
	var sim *cellport.SimDriver
	if path == simDevice {
		sim = cellport.NewSimDriver()
		drv = sim
		d.driver = simDevice
	} else if drv, err = s.driver(path); err != nil {
		return nil, err
	}

	d.transport = cellport.New(drv)
	d.port, d.events, err = d.transport.Init(deviceUART, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if sim != nil {
		d.modem = newSimModem(sim.Line(deviceUART))
	}
	return d, nil
}

func (d *device) Close() error {
	if d.modem != nil {
		d.modem.Stop()
	}
	return d.transport.Close()
}

func (d *device) lineInfo() *components.LineInfo {
	cfg := d.port.Config()
	return &components.LineInfo{
		Driver:       d.driver,
		BaudRate:     cfg.BaudRate,
		RxBufferSize: cfg.RxBufferSize,
		RTSThreshold: cfg.RTSThreshold,
		RTSWired:     cfg.RTS != cellport.NoPin,
		CTSWired:     cfg.CTS != cellport.NoPin,
		RTS:          true,
	}
}
