/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/driver/tty"
	"github.com/spf13/cobra"
)

var (
	watchSignals []string
	watchTimeout time.Duration
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <device>",
	Short: "Display or watch modem control signals",
	Long: `Display the state of the modem control signals on a tty device.

With --watch, report each change of the selected inputs until Ctrl+C. A modem
lowering CTS shows here the moment it stops accepting data.

Examples:
  cellport signals /dev/ttyUSB2
  cellport signals /dev/ttyAMA0 --watch
  cellport signals /dev/ttyAMA0 --watch --signals cts,ri --timeout 30s

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		watch, _ := cmd.Flags().GetBool("watch")

		mask, err := parseSignalMask(watchSignals)
		if err != nil {
			return err
		}

		drv, line, err := openRawLine(path)
		if err != nil {
			return err
		}
		defer line.Close()

		signals, err := drv.Signals(deviceUART)
		if err != nil {
			return fmt.Errorf("reading modem signals: %w", err)
		}
		if !watch {
			fmt.Printf("Modem Signals for %s:\n\n", path)
			fmt.Printf("  CTS (Clear To Send):       %s\n", formatSignalState(signals.CTS))
			fmt.Printf("  DSR (Data Set Ready):      %s\n", formatSignalState(signals.DSR))
			fmt.Printf("  RI  (Ring Indicator):      %s\n", formatSignalState(signals.RI))
			fmt.Printf("  DCD (Data Carrier Detect): %s\n", formatSignalState(signals.DCD))
			fmt.Printf("  RTS (Request To Send):     %s\n", formatSignalState(signals.RTS))
			fmt.Printf("  DTR (Data Terminal Ready): %s\n", formatSignalState(signals.DTR))
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s on %s, press Ctrl+C to stop\n", strings.Join(watchSignals, ", "), path)
		printSignals("Initial state", signals, mask)

		for {
			waitCtx, cancel := ctx, context.CancelFunc(func() {})
			if watchTimeout > 0 {
				waitCtx, cancel = context.WithTimeout(ctx, watchTimeout)
			}
			signals, changed, err := drv.WaitSignalChange(waitCtx, deviceUART, mask)
			cancel()

			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				fmt.Printf("[%s] Timeout - no signal changes\n", time.Now().Format("15:04:05"))
			case err != nil:
				return fmt.Errorf("waiting for signal change: %w", err)
			default:
				printSignals("Signal change detected", signals, changed)
			}
		}
	},
}

// openRawLine claims path through the tty driver without starting a port,
// for commands that only touch the control lines.
func openRawLine(path string) (*tty.Driver, cellport.Line, error) {
	drv, err := tty.New(tty.WithDevice(deviceUART, path))
	if err != nil {
		return nil, nil, err
	}
	cfg := cellport.DefaultConfig()
	cfg.CTS, cfg.RTS = pinCTS, pinRTS
	line, err := drv.Open(deviceUART, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return drv, line, nil
}

func parseSignalMask(signalNames []string) (tty.SignalMask, error) {
	if len(signalNames) == 0 {
		return tty.SignalCTS | tty.SignalDSR | tty.SignalRI | tty.SignalDCD, nil
	}

	var mask tty.SignalMask
	for _, name := range signalNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cts":
			mask |= tty.SignalCTS
		case "dsr":
			mask |= tty.SignalDSR
		case "ri":
			mask |= tty.SignalRI
		case "dcd":
			mask |= tty.SignalDCD
		default:
			return 0, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
	}
	return mask, nil
}

func printSignals(title string, signals tty.ModemSignals, mask tty.SignalMask) {
	fmt.Printf("[%s] %s:\n", time.Now().Format("15:04:05"), title)
	if mask&tty.SignalCTS != 0 {
		fmt.Printf("  CTS: %s\n", formatSignalState(signals.CTS))
	}
	if mask&tty.SignalDSR != 0 {
		fmt.Printf("  DSR: %s\n", formatSignalState(signals.DSR))
	}
	if mask&tty.SignalRI != 0 {
		fmt.Printf("  RI:  %s\n", formatSignalState(signals.RI))
	}
	if mask&tty.SignalDCD != 0 {
		fmt.Printf("  DCD: %s\n", formatSignalState(signals.DCD))
	}
	fmt.Println()
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().BoolP("watch", "w", false, "Report signal changes until interrupted")
	signalsCmd.Flags().StringSliceVarP(&watchSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to watch (comma-separated: cts,dsr,ri,dcd)")
	signalsCmd.Flags().DurationVarP(&watchTimeout, "timeout", "t", 0,
		"Report a timeout after this long without changes (0 = no timeout)")
}
