/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/allbin/go-cellport/driver/tty"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <port> | --serial <sn>",
	Short: "USB-reset a hung modem",
	Long: `Reset a USB-attached modem at the USB level. A module that stopped
answering AT commands usually recovers without a power cycle.

The modem re-enumerates afterwards and its tty paths may move (ttyUSB2 may
come back as ttyUSB6). The interfaces found under the same serial number are
listed once it is back.

Needs the usbreset utility (usbutils) and root.

Examples:
  sudo cellport reset /dev/ttyUSB2
  sudo cellport reset --serial 3a1f9c2e`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		switch {
		case serialFlag == "" && len(args) != 1:
			return errors.New("requires either a port path argument or --serial flag")
		case serialFlag != "" && len(args) > 0:
			return errors.New("cannot specify both port path and --serial flag")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tty.IsUSBResetAvailable() {
			fmt.Fprintln(os.Stderr, "Install with: sudo apt-get install usbutils")
			return tty.ErrUSBResetNotAvailable
		}

		serialNumber, _ := cmd.Flags().GetString("serial")
		if serialNumber == "" {
			info, err := tty.GetPortInfo(args[0])
			if err != nil {
				return err
			}
			if !info.IsUSB() {
				return fmt.Errorf("%s is not a USB modem: %w", args[0], tty.ErrUSBInfoNotAvailable)
			}
			serialNumber = info.SerialNumber
			fmt.Printf("Resetting modem on %s\n", args[0])
			if err := tty.ResetModem(args[0]); err != nil {
				return err
			}
		} else {
			fmt.Printf("Resetting modem with serial %s\n", serialNumber)
			if err := tty.ResetModemBySerial(serialNumber); err != nil {
				return err
			}
		}
		glog.Infof("usb reset of modem %q completed", serialNumber)

		if serialNumber == "" {
			fmt.Println("Modem reset; it has no serial number, use 'cellport list --table' to find it")
			return nil
		}
		ports, err := modemPorts(serialNumber)
		if err != nil {
			return err
		}
		fmt.Printf("Modem %s is back with %d interface(s):\n", serialNumber, len(ports))
		for _, p := range ports {
			fmt.Printf("  %-14s if%s\n", p.Path, p.InterfaceNumber)
		}
		return nil
	},
}

// modemPorts returns the ttys of the USB modem with the given serial number.
func modemPorts(serialNumber string) ([]*tty.PortInfo, error) {
	paths, err := tty.ListPorts()
	if err != nil {
		return nil, err
	}
	var out []*tty.PortInfo
	for _, path := range paths {
		info, err := tty.GetPortInfo(path)
		if err == nil && info.SerialNumber == serialNumber {
			out = append(out, info)
		}
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringP("serial", "s", "", "Reset the modem with this USB serial number")
}
