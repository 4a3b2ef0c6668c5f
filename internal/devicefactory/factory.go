// Package devicefactory is the single place commands obtain a BLE transport
// from, so tests can swap in a fake one.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	goble "github.com/srg/uwave/internal/device/go-ble"
)

// TransportFactory creates the device.Transport used by commands.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger) (device.Transport, error) {
	tr, err := goble.NewTransport(nil, logger)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// NewTransport creates a transport through TransportFactory.
func NewTransport(logger *logrus.Logger) (device.Transport, error) {
	return TransportFactory(logger)
}
