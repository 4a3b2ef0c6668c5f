package main

import (
	"errors"
	"fmt"

	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/lifecycle"
	"github.com/srg/uwave/internal/registry"
)

// Command-level errors
var (
	// ErrNoDevices is returned when a command needs at least one device and
	// discovery found none.
	ErrNoDevices = errors.New("no UWAVE devices found")
)

// FormatUserError turns an error chain into a message for the terminal.
func FormatUserError(err error) string {
	var connErr *lifecycle.ConnectionError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform"
	case errors.Is(err, device.ErrUserCancelled):
		return "no device was selected"
	case errors.As(err, &connErr):
		return fmt.Sprintf("could not connect to %s (%s step): %v", connErr.DeviceID, connErr.Step, connErr.Err)
	case errors.Is(err, lifecycle.ErrConnectAborted):
		return "connect was cancelled because the device was disconnected"
	case errors.Is(err, lifecycle.ErrAlreadyConnecting):
		return "device is already connecting or connected"
	case errors.Is(err, registry.ErrNotFound):
		return "device is not registered"
	default:
		return err.Error()
	}
}
