// Package payload decodes UWAVE notification frames and battery reads.
//
// A measurement frame carries a signed 24-bit little-endian reading at
// offsets 3..5, expressed in hundredths. Devices whose name starts with "07"
// report one extra decimal place.
package payload

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// MeasurementFrameSize is the minimum length of a measurement notification.
	MeasurementFrameSize = 6

	// ScaledNamePrefix marks devices that report an extra decimal place.
	ScaledNamePrefix = "07"

	valueOffset = 3
	signBit     = 0x800000
	wrap24      = 0x1000000
	baseDivisor = 100.0
	maxRaw      = signBit - 1
	minRaw      = -signBit
)

// ErrInvalidPayload is returned for buffers too short to decode.
var ErrInvalidPayload = errors.New("invalid payload")

// DecodeMeasurement converts a notification buffer into a reading.
// deviceName selects the scaling variant.
func DecodeMeasurement(buf []byte, deviceName string) (float64, error) {
	if len(buf) < MeasurementFrameSize {
		return 0, fmt.Errorf("%w: measurement frame needs %d bytes, got %d", ErrInvalidPayload, MeasurementFrameSize, len(buf))
	}

	raw := int32(buf[valueOffset]) | int32(buf[valueOffset+1])<<8 | int32(buf[valueOffset+2])<<16
	if raw&signBit != 0 {
		raw -= wrap24
	}

	value := float64(raw) / baseDivisor
	if divisor := ScaleForName(deviceName); divisor != 1 {
		value = roundTo(value/divisor, 3)
	}
	return value, nil
}

// DecodeBatteryLevel returns the battery percentage held in the first byte.
func DecodeBatteryLevel(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: battery level buffer is empty", ErrInvalidPayload)
	}
	return int(buf[0]), nil
}

// DecodeLegacyMeasurement decodes the obsolete 16-bit frame format
// (signed little-endian at offsets 3..4, hundredths).
func DecodeLegacyMeasurement(buf []byte) (float64, error) {
	if len(buf) < valueOffset+2 {
		return 0, fmt.Errorf("%w: legacy frame needs %d bytes, got %d", ErrInvalidPayload, valueOffset+2, len(buf))
	}
	raw := int16(uint16(buf[valueOffset]) | uint16(buf[valueOffset+1])<<8)
	return float64(raw) / baseDivisor, nil
}

// EncodeMeasurement builds a measurement frame for value using the base
// (unscaled) format. Header bytes are zero.
func EncodeMeasurement(value float64) ([]byte, error) {
	raw := int64(math.Round(value * baseDivisor))
	if raw < minRaw || raw > maxRaw {
		return nil, fmt.Errorf("%w: value %v outside signed 24-bit range", ErrInvalidPayload, value)
	}

	u := uint32(raw) & (wrap24 - 1)
	buf := make([]byte, MeasurementFrameSize)
	buf[valueOffset] = byte(u)
	buf[valueOffset+1] = byte(u >> 8)
	buf[valueOffset+2] = byte(u >> 16)
	return buf, nil
}

// ScaleForName returns the extra divisor applied for the given device name.
func ScaleForName(name string) float64 {
	if strings.HasPrefix(name, ScaledNamePrefix) {
		return 10
	}
	return 1
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
