/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/allbin/go-cellport/driver/tty"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  cellport info /dev/ttyUSB2
  cellport info /dev/ttyACM0

Cellular modules expose several tty interfaces on one USB device (diag, GNSS,
AT, PPP). The interface number tells them apart.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := tty.GetPortInfo(args[0])
		if err != nil {
			return fmt.Errorf("getting port info: %w", err)
		}
		fmt.Print(formatPortInfo(info))
		return nil
	},
}

func formatPortInfo(info *tty.PortInfo) string {
	out := fmt.Sprintf("Port Information: %s\n\n", info.Path)
	out += fmt.Sprintf("  Name:        %s\n", info.Name)
	out += fmt.Sprintf("  Type:        %s\n", getPortType(info.Name))
	out += fmt.Sprintf("  Description: %s\n", info.Description)

	if info.VendorID == "" && info.ProductID == "" {
		return out
	}
	out += "\nUSB Device Information:\n"
	fields := []struct{ label, value string }{
		{"Vendor ID:   ", info.VendorID},
		{"Product ID:  ", info.ProductID},
		{"Serial:      ", info.SerialNumber},
		{"Interface:   ", info.InterfaceNumber},
		{"Bus:         ", info.BusNumber},
		{"Device:      ", info.DeviceNumber},
		{"Manufacturer:", info.Manufacturer},
		{"Product:     ", info.Product},
	}
	for _, f := range fields {
		if f.value != "" {
			out += fmt.Sprintf("  %s %s\n", f.label, f.value)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
