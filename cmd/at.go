/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/allbin/go-cellport"
	"github.com/allbin/go-cellport/internal/tui/components"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrCommandFailed is returned when the modem answers with an error result.
var ErrCommandFailed = errors.New("command failed")

// atCmd represents the at command
var atCmd = &cobra.Command{
	Use:   "at <device|sim> [command...]",
	Short: "Send AT commands to a modem",
	Long: `Send AT commands to a cellular modem and print its responses.

Each command is written with a trailing CR and the response is collected until
a final result code (OK, ERROR, +CME ERROR, +CMS ERROR, NO CARRIER, ...) or
the timeout. Without commands an interactive terminal opens.

Use "sim" as the device to talk to the built-in simulated modem.

Examples:
  cellport at /dev/ttyUSB2 ATI AT+CSQ
  cellport at /dev/ttyUSB2 --flow rtscts --rts-threshold 128 AT+COPS?
  cellport at /dev/ttyAMA0 --driver bugst --baud 921600
  cellport at sim AT+CPIN?`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindLineFlags(cmd); err != nil {
			return err
		}
		return viper.BindPFlag("at.timeout", cmd.Flags().Lookup("timeout"))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		settings := currentLineSettings()

		if len(args) == 1 {
			return runATTerminal(path, settings)
		}

		dev, err := openDevice(path, settings)
		if err != nil {
			return err
		}
		defer dev.Close()

		timeout := viper.GetDuration("at.timeout")
		failed := false
		for _, command := range args[1:] {
			fmt.Println(styles.InfoStyle.Render("> " + command))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			lines, err := exchange(ctx, dev.port, command)
			cancel()

			for _, line := range lines {
				fmt.Println("  " + line)
			}
			switch {
			case errors.Is(err, ErrCommandFailed):
				fmt.Println(styles.ErrorStyle.Render("✗ " + err.Error()))
				failed = true
			case err != nil:
				return fmt.Errorf("%s: %w", command, err)
			default:
				fmt.Println(styles.SuccessStyle.Render("✓ OK"))
			}
		}
		if failed {
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(atCmd)
	addLineFlags(atCmd)
	atCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Time to wait for each final result code")
}

// exchange writes command with a CR and collects response lines up to the
// final result code. Echoed command lines are dropped.
func exchange(ctx context.Context, port *cellport.Port, command string) ([]string, error) {
	if _, err := port.Write([]byte(command + "\r")); err != nil {
		return nil, err
	}

	var (
		lines   []string
		pending []byte
		buf     = make([]byte, 256)
	)
	for {
		n, err := port.ReadContext(ctx, buf)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return lines, fmt.Errorf("no final result code: %w", cellport.ErrTimeout)
			}
			return lines, err
		}
		pending = append(pending, buf[:n]...)

		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(string(pending[:i]))
			pending = pending[i+1:]
			if line == "" || line == command {
				continue
			}
			if final, ok := finalResult(line); ok {
				if final != "OK" && final != "CONNECT" {
					return lines, fmt.Errorf("%s: %w", line, ErrCommandFailed)
				}
				return lines, nil
			}
			lines = append(lines, components.Printable([]byte(line)))
		}
	}
}

// finalResult reports whether line terminates an AT response.
func finalResult(line string) (string, bool) {
	switch {
	case line == "OK", line == "ERROR", line == "NO CARRIER", line == "NO DIALTONE",
		line == "BUSY", line == "NO ANSWER":
		return line, true
	case strings.HasPrefix(line, "CONNECT"):
		return "CONNECT", true
	case strings.HasPrefix(line, "+CME ERROR:"), strings.HasPrefix(line, "+CMS ERROR:"):
		return strings.SplitN(line, ":", 2)[0], true
	}
	return "", false
}
