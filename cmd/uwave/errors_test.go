package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/lifecycle"
	"github.com/srg/uwave/internal/registry"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "bluetooth off through transport error",
			err:      device.NewTransportError("request", fmt.Errorf("%w: hci", device.ErrBluetoothOff)),
			expected: "Bluetooth is turned off or no adapter is available",
		},
		{
			name:     "unsupported platform",
			err:      device.ErrUnsupported,
			expected: "Bluetooth is not supported on this platform",
		},
		{
			name:     "cancelled",
			err:      device.ErrUserCancelled,
			expected: "no device was selected",
		},
		{
			name:     "connection failure names the step",
			err:      &lifecycle.ConnectionError{DeviceID: "AA", Step: lifecycle.StepReadName, Err: errors.New("timeout")},
			expected: "could not connect to AA (read-name step): timeout",
		},
		{
			name:     "connect overtaken by disconnect",
			err:      fmt.Errorf("%w: AA", lifecycle.ErrConnectAborted),
			expected: "connect was cancelled because the device was disconnected",
		},
		{
			name:     "unknown device",
			err:      fmt.Errorf("%w: AA", registry.ErrNotFound),
			expected: "device is not registered",
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
