package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
)

// Transport implements device.Transport on top of a go-ble Host.
// RequestDevice scans until the first connectable advertisement that satisfies
// the filter; the scan context ending plays the role of a dismissed chooser.
type Transport struct {
	host   Host
	logger *logrus.Logger
}

// NewTransport creates a Transport. A nil host is created with HostFactory.
func NewTransport(host Host, logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if host == nil {
		h, err := HostFactory()
		if err != nil {
			return nil, device.NewTransportError("init", err)
		}
		host = h
	}
	return &Transport{host: host, logger: logger}, nil
}

// RequestDevice implements device.Transport
func (t *Transport) RequestDevice(ctx context.Context, filter device.Filter) (device.Peripheral, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		found device.Advertisement
	)

	t.logger.WithFields(logrus.Fields{
		"services": filter.Services,
		"names":    filter.Names,
		"exclude":  filter.Exclude,
	}).Debug("Requesting device...")

	err := t.host.Scan(scanCtx, false, func(adv device.Advertisement) {
		if !adv.Connectable() || filter.Excludes(adv.Addr()) || !filter.Matches(adv.LocalName(), adv.Services()) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if found == nil {
			found = adv
			cancel()
		}
	})

	mu.Lock()
	adv := found
	mu.Unlock()

	if adv != nil {
		t.logger.WithFields(logrus.Fields{
			"device_id": adv.Addr(),
			"name":      adv.LocalName(),
			"rssi":      adv.RSSI(),
		}).Info("Device selected")
		return &Peripheral{
			host:   t.host,
			id:     adv.Addr(),
			name:   adv.LocalName(),
			logger: t.logger,
		}, nil
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, device.ErrUserCancelled
	}
	if err == nil {
		// Scan ended on its own without a match
		return nil, device.ErrUserCancelled
	}
	return nil, device.NewTransportError("request", err)
}

// Peripheral is a device found by RequestDevice.
type Peripheral struct {
	host   Host
	id     string
	name   string
	logger *logrus.Logger
}

// NewPeripheral returns a handle for a known address without scanning.
func NewPeripheral(host Host, address, name string, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{host: host, id: address, name: name, logger: logger}
}

func (p *Peripheral) ID() string   { return p.id }
func (p *Peripheral) Name() string { return p.name }

// Connect dials the peripheral and starts the link monitor
func (p *Peripheral) Connect(ctx context.Context) (device.Link, error) {
	p.logger.WithField("device_id", p.id).Debug("Dialing BLE device...")

	client, err := p.host.Dial(ctx, p.id)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"device_id": p.id,
			"error":     err,
		}).Error("Failed to dial BLE device")
		return nil, device.NewTransportError("connect", err)
	}

	p.logger.WithField("device_id", p.id).Info("BLE device connected")
	return newLink(p.id, client, p.logger), nil
}
