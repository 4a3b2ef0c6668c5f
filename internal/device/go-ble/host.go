package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/uwave/internal/device"
)

// GATTClient is the part of ble.Client the adapter relies on.
type GATTClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// Host is a local BLE adapter able to scan and dial.
type Host interface {
	device.ScanningDevice
	Dial(ctx context.Context, address string) (GATTClient, error)
}

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// HostFactory creates the Host used by NewTransport when none is supplied.
// This is a variable so that it can be overridden in tests.
var HostFactory = func() (Host, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &hostAdapter{dev: dev}, nil
}

// hostAdapter wraps ble.Device to implement Host
type hostAdapter struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (h *hostAdapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	return NormalizeError(h.dev.Scan(ctx, allowDup, bleHandler))
}

func (h *hostAdapter) Dial(ctx context.Context, address string) (GATTClient, error) {
	client, err := h.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}
