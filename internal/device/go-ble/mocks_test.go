package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/uwave/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockHost implements Host for testing. Scan replays Advertisements to the
// handler and then blocks until ctx ends unless ScanErr is set.
type MockHost struct {
	mock.Mock
	Advertisements []device.Advertisement
}

func (m *MockHost) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup)
	for _, adv := range m.Advertisements {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	if err := args.Error(0); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockHost) Dial(ctx context.Context, address string) (GATTClient, error) {
	args := m.Called(ctx, address)
	if c := args.Get(0); c != nil {
		return c.(GATTClient), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGATTClient implements GATTClient for testing.
type MockGATTClient struct {
	mock.Mock
	done chan struct{}
}

func newMockGATTClient() *MockGATTClient {
	return &MockGATTClient{done: make(chan struct{})}
}

func (m *MockGATTClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	if s := args.Get(0); s != nil {
		return s.([]*ble.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGATTClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	if c := args.Get(0); c != nil {
		return c.([]*ble.Characteristic), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGATTClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	if d := args.Get(0); d != nil {
		return d.([]*ble.Descriptor), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockGATTClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.done
}

// drop simulates the peer going away.
func (m *MockGATTClient) drop() {
	close(m.done)
}
