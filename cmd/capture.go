/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <device|sim> <output-file|->",
	Short: "Capture modem output to a file",
	Long: `Capture everything the modem sends to a file, driven by the port's events.

The port is drained each time a data-available event arrives. Overflow and
line fault events are reported on stderr. The output file is opened in append
mode; use - for stdout. Runs until interrupted (Ctrl+C).

Example usage:
  cellport capture /dev/ttyUSB1 nmea.log
  cellport capture /dev/ttyUSB2 urc.log --flow rtscts --rx-buffer 4096 -c
  cellport capture sim -`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("capture.console", cmd.Flags().Lookup("console")); err != nil {
			return err
		}
		return bindLineFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(args[0], args[1], currentLineSettings(), viper.GetBool("capture.console"))
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	addLineFlags(captureCmd)
	captureCmd.Flags().BoolP("console", "c", false, "Echo captured data to stdout as well")
}

func runCapture(path, outputPath string, settings lineSettings, console bool) error {
	dev, err := openDevice(path, settings)
	if err != nil {
		return err
	}
	defer dev.Close()

	var out io.Writer = os.Stdout
	if outputPath != "-" {
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer file.Close()
		out = file
		if console {
			out = io.MultiWriter(file, os.Stdout)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dev.modem != nil {
		go dev.modem.Stream(ctx, settings.BaudRate/10)
	}

	fmt.Fprintf(os.Stderr, "Capturing %s to %s, press Ctrl+C to stop\n", path, outputPath)
	start := time.Now()
	n, err := capture(ctx, dev.port, dev.events, out)
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes in %v\n", n, time.Since(start).Round(time.Millisecond))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// capture copies port data to out each time the port reports data until ctx
// is done, returning the byte count.
func capture(ctx context.Context, port *cellport.Port, events *cellport.EventQueue, out io.Writer) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		ev, err := events.Receive(ctx)
		if err != nil {
			return total, err
		}
		switch ev.Kind {
		case cellport.EventDataAvailable:
			for {
				n, err := port.Read(buf)
				if err != nil {
					return total, err
				}
				if n == 0 {
					break
				}
				if _, err := out.Write(buf[:n]); err != nil {
					return total, fmt.Errorf("write error: %w", err)
				}
				total += int64(n)
			}
		case cellport.EventError:
			glog.Warningf("uart %d: %v", ev.Port, ev.Err())
			fmt.Fprintf(os.Stderr, "warning: %v\n", ev.Err())
		}
	}
}
