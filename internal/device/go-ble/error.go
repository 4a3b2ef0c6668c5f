package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/uwave/internal/device"
)

// errorPatterns maps lowercase fragments of go-ble/HCI error messages to the
// device error they stand for. First match wins, so "disconnected" must stay
// after the more specific entries.
var errorPatterns = []struct {
	fragment string
	target   error
}{
	{"is bluetooth turned on", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"can't init hci", device.ErrBluetoothOff},
	{"no devices available", device.ErrBluetoothOff},
	{"not supported", device.ErrUnsupported},
	{"device already connected", device.ErrAlreadyConnected},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
}

// NormalizeError wraps known go-ble failures with the matching device error.
// Context errors and unknown errors are returned as is.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.fragment) {
			return fmt.Errorf("%w: %v", p.target, err)
		}
	}
	return err
}
