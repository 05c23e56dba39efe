package tty

import "errors"

// Errors returned by the tty driver. Through a Transport, open failures
// surface as cellport.ErrPlatform.
var (
	ErrDeviceNotFound   = errors.New("tty device not found")
	ErrPermissionDenied = errors.New("permission denied opening tty device")
	ErrDeviceInUse      = errors.New("tty device already in use")
	ErrInvalidBaudRate  = errors.New("baud rate not supported by termios")
	ErrInvalidConfig    = errors.New("invalid tty driver configuration")
	ErrPortClosed       = errors.New("tty line is closed")

	ErrInvalidSignalMask = errors.New("empty signal mask")

	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)
