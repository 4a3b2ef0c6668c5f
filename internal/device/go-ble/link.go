package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/groutine"
)

// Link is a live go-ble GATT connection.
type Link struct {
	id     string
	client GATTClient
	logger *logrus.Logger

	mu        sync.RWMutex
	connected bool
	done      chan struct{}
	closeOnce sync.Once
}

func newLink(id string, client GATTClient, logger *logrus.Logger) *Link {
	l := &Link{
		id:        id,
		client:    client,
		logger:    logger,
		connected: true,
		done:      make(chan struct{}),
	}

	// Monitor go-ble client Disconnected() channel so a link loss reaches Disconnected()
	groutine.Go(context.Background(), "ble-link-monitor-"+id, func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			l.logger.WithField("device_id", l.id).Warn("Transport reported disconnection")
			l.markClosed()
		case <-l.done:
		}
	})
	return l
}

func (l *Link) markClosed() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
		close(l.done)
	})
}

// IsConnected implements device.Link
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Disconnected implements device.Link
func (l *Link) Disconnected() <-chan struct{} {
	return l.done
}

// Disconnect cancels the connection. Calling it on a closed link is a no-op.
func (l *Link) Disconnect() error {
	if !l.IsConnected() {
		l.logger.WithField("device_id", l.id).Debug("Disconnect called but already disconnected")
		return nil
	}
	l.markClosed()

	if err := NormalizeError(l.client.CancelConnection()); err != nil {
		l.logger.WithFields(logrus.Fields{
			"device_id": l.id,
			"error":     err,
		}).Warn("BLE device disconnected with errors")
		return device.NewTransportError("disconnect", err)
	}
	l.logger.WithField("device_id", l.id).Info("BLE device disconnected")
	return nil
}

// GetService discovers a single primary service by UUID
func (l *Link) GetService(ctx context.Context, uuid string) (device.Service, error) {
	u, err := ble.Parse(device.NormalizeUUID(uuid))
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	services, err := callWithContext(ctx, func() ([]*ble.Service, error) {
		return l.client.DiscoverServices([]ble.UUID{u})
	})
	if err != nil {
		return nil, device.NewTransportError("get-service", NormalizeError(err))
	}

	for _, s := range services {
		if s.UUID.Equal(u) {
			return &Service{link: l, svc: s}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// Service is a discovered go-ble service.
type Service struct {
	link *Link
	svc  *ble.Service
}

func (s *Service) UUID() string { return device.NormalizeUUID(s.svc.UUID.String()) }

// GetCharacteristic discovers a characteristic and its descriptors so that the
// CCCD is known before subscribing.
func (s *Service) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	u, err := ble.Parse(device.NormalizeUUID(uuid))
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", uuid, err)
	}

	chars, err := callWithContext(ctx, func() ([]*ble.Characteristic, error) {
		return s.link.client.DiscoverCharacteristics([]ble.UUID{u}, s.svc)
	})
	if err != nil {
		return nil, device.NewTransportError("get-characteristic", NormalizeError(err))
	}

	for _, c := range chars {
		if !c.UUID.Equal(u) {
			continue
		}
		if _, err := callWithContext(ctx, func() ([]*ble.Descriptor, error) {
			return s.link.client.DiscoverDescriptors(nil, c)
		}); err != nil {
			s.link.logger.WithFields(logrus.Fields{
				"device_id": s.link.id,
				"char_uuid": uuid,
				"error":     err,
			}).Debug("Descriptor discovery failed")
		}
		return &Characteristic{link: s.link, char: c}, nil
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.UUID(), uuid}}
}

// Characteristic is a discovered go-ble characteristic.
type Characteristic struct {
	link *Link

	mu         sync.Mutex
	char       *ble.Characteristic
	subscribed bool
}

func (c *Characteristic) UUID() string { return device.NormalizeUUID(c.char.UUID.String()) }

// ReadValue reads the current value; the read is abandoned when ctx ends.
func (c *Characteristic) ReadValue(ctx context.Context) ([]byte, error) {
	if !c.link.IsConnected() {
		return nil, device.ErrNotConnected
	}
	data, err := callWithContext(ctx, func() ([]byte, error) {
		return c.link.client.ReadCharacteristic(c.char)
	})
	if err != nil {
		return nil, device.NewTransportError("read", NormalizeError(err))
	}
	return data, nil
}

// Subscribe enables notifications and hands every payload to onChange as a copy
func (c *Characteristic) Subscribe(ctx context.Context, onChange func([]byte)) error {
	if !c.link.IsConnected() {
		return device.ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	handler := func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		onChange(buf)
	}
	if _, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, c.link.client.Subscribe(c.char, false, handler)
	}); err != nil {
		return device.NewTransportError("subscribe", NormalizeError(err))
	}
	c.subscribed = true

	c.link.logger.WithFields(logrus.Fields{
		"device_id": c.link.id,
		"char_uuid": c.UUID(),
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe stops notifications. Unsubscribing twice is a no-op.
func (c *Characteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.subscribed {
		return nil
	}
	c.subscribed = false

	if err := NormalizeError(c.link.client.Unsubscribe(c.char, false)); err != nil {
		return device.NewTransportError("unsubscribe", err)
	}
	c.link.logger.WithFields(logrus.Fields{
		"device_id": c.link.id,
		"char_uuid": c.UUID(),
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// callWithContext runs a blocking go-ble call and stops waiting for it when
// ctx ends. The call itself keeps running; its result is discarded.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, err := fn()
		resultCh <- result{v: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
