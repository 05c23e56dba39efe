package tty

import (
	"fmt"
	"os/exec"
	"time"
)

// reenumerateDelay is how long a USB modem takes to reappear after a reset.
var reenumerateDelay = 2 * time.Second

// ResetModem performs a USB-level reset of the modem behind portPath. It
// recovers a module that stopped answering AT commands without power
// cycling the board.
//
// Requires the usbreset utility (usbutils) and root. Returns
// ErrUSBInfoNotAvailable for board UARTs and ErrUSBResetNotAvailable when
// usbreset is missing.
func ResetModem(portPath string) error {
	info, err := GetPortInfo(portPath)
	if err != nil {
		return fmt.Errorf("failed to get port info: %w", err)
	}
	if !info.IsUSB() {
		return ErrUSBInfoNotAvailable
	}
	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	cmd := exec.Command("usbreset", usbPath(info.BusNumber, info.DeviceNumber))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	time.Sleep(reenumerateDelay)
	return nil
}

// ResetModemBySerial resets the USB modem with the given serial number.
// Paths change on re-enumeration; serial numbers do not.
func ResetModemBySerial(serialNumber string) error {
	ports, err := ListPorts()
	if err != nil {
		return err
	}

	for _, portPath := range ports {
		info, err := GetPortInfo(portPath)
		if err != nil {
			continue
		}
		if info.SerialNumber == serialNumber {
			return ResetModem(portPath)
		}
	}
	return fmt.Errorf("modem with serial %s not found", serialNumber)
}

// IsUSBResetAvailable checks if usbreset utility is available in PATH
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}

// usbPath formats bus and device numbers as usbreset expects: BBB/DDD.
func usbPath(bus, device string) string {
	return zeroPad(bus) + "/" + zeroPad(device)
}

func zeroPad(s string) string {
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
