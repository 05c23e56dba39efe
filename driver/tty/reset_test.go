package tty

import (
	"errors"
	"strings"
	"testing"
)

func TestUSBPath(t *testing.T) {
	tests := []struct {
		bus      string
		device   string
		expected string
	}{
		{"5", "7", "005/007"},
		{"1", "2", "001/002"},
		{"123", "456", "123/456"},
		{"1", "10", "001/010"},
	}

	for _, tt := range tests {
		if got := usbPath(tt.bus, tt.device); got != tt.expected {
			t.Errorf("usbPath(%q, %q) = %q, expected %q", tt.bus, tt.device, got, tt.expected)
		}
	}
}

func TestResetModemBoardUART(t *testing.T) {
	err := ResetModem("/dev/null")
	if !errors.Is(err, ErrUSBInfoNotAvailable) {
		t.Errorf("Expected ErrUSBInfoNotAvailable, got %v", err)
	}

	err = ResetModem("/dev/nonexistent")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestResetModemBySerialNotFound(t *testing.T) {
	err := ResetModemBySerial("NONEXISTENT_SERIAL")
	if err == nil {
		t.Fatal("Expected error for nonexistent serial number")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}
}
