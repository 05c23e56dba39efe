/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/allbin/go-cellport/driver/tty"
	"github.com/spf13/cobra"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <device> <state>",
	Short: "Drive the RTS line by hand",
	Long: `Set the RTS (Request To Send) output of a tty device.

Useful for checking that a modem stops sending when RTS drops, before
handing the line to automatic flow control. Most drivers restore RTS when the
device is closed, so --hold keeps it open.

Examples:
  cellport rts /dev/ttyAMA0 low --hold 10s
  cellport rts /dev/ttyUSB2 on

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		state, err := parseSignalState(args[1])
		if err != nil {
			return err
		}
		hold, _ := cmd.Flags().GetDuration("hold")

		drv, line, err := openRawLine(path)
		if err != nil {
			return err
		}
		defer line.Close()

		if err := line.SetRTS(state); err != nil {
			return fmt.Errorf("setting RTS: %w", err)
		}

		var current tty.ModemSignals
		if current, err = drv.Signals(deviceUART); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not verify RTS state: %v\n", err)
			current.RTS = state
		}
		fmt.Printf("RTS set to %s on %s\n", formatSignalState(current.RTS), path)

		if hold > 0 {
			fmt.Printf("Holding for %v, press Ctrl+C to release\n", hold)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			select {
			case <-sig:
			case <-time.After(hold):
			}
		}
		return nil
	},
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

func init() {
	rootCmd.AddCommand(rtsCmd)
	rtsCmd.Flags().Duration("hold", 0, "Keep the device open with RTS set for this long")
}
