package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/srg/uwave/internal/device"
)

// CharacteristicConfig represents a fake GATT characteristic
type CharacteristicConfig struct {
	UUID           string `json:"uuid"`
	Value          []int  `json:"value,omitempty"`
	ReadError      string `json:"read_error,omitempty"`
	SubscribeError string `json:"subscribe_error,omitempty"`
}

// ServiceConfig represents a fake GATT service
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig is the JSON profile of a fake peripheral
type PeripheralConfig struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	ConnectError  string          `json:"connect_error,omitempty"`
	ConnectBlocks bool            `json:"connect_blocks,omitempty"`
	Services      []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds fake peripherals with a GATT profile.
type PeripheralBuilder struct {
	cfg  PeripheralConfig
	gate <-chan struct{}
}

// NewPeripheralBuilder creates a builder for a peripheral with the given id.
func NewPeripheralBuilder(id string) *PeripheralBuilder {
	return &PeripheralBuilder{cfg: PeripheralConfig{ID: id}}
}

// WithName sets the name the peripheral is discovered with.
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.cfg.Name = name
	return b
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.cfg.Services = append(b.cfg.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid string, value []byte) *PeripheralBuilder {
	if len(b.cfg.Services) == 0 {
		panic("WithCharacteristic: no service added yet")
	}
	svc := &b.cfg.Services[len(b.cfg.Services)-1]
	vals := make([]int, len(value))
	for i, v := range value {
		vals[i] = int(v)
	}
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{UUID: uuid, Value: vals})
	return b
}

// WithConnectError makes every Connect attempt fail with msg.
func (b *PeripheralBuilder) WithConnectError(msg string) *PeripheralBuilder {
	b.cfg.ConnectError = msg
	return b
}

// WithConnectGate makes Connect wait until gate is closed, ignoring the
// context like a BLE stack that cannot abort a pending connection.
func (b *PeripheralBuilder) WithConnectGate(gate <-chan struct{}) *PeripheralBuilder {
	b.gate = gate
	return b
}

// FromJSON fills the profile from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.cfg); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}
	return b
}

// Build creates the fake peripheral.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		cfg:      b.cfg,
		gate:     b.gate,
		services: make(map[string]*FakeService),
	}
	for _, sc := range b.cfg.Services {
		svc := &FakeService{uuid: device.NormalizeUUID(sc.UUID), chars: make(map[string]*FakeCharacteristic)}
		for _, cc := range sc.Characteristics {
			value := make([]byte, len(cc.Value))
			for i, v := range cc.Value {
				value[i] = byte(v)
			}
			c := &FakeCharacteristic{uuid: device.NormalizeUUID(cc.UUID), value: value}
			if cc.ReadError != "" {
				c.readErr = errors.New(cc.ReadError)
			}
			if cc.SubscribeError != "" {
				c.subscribeErr = errors.New(cc.SubscribeError)
			}
			svc.chars[c.uuid] = c
		}
		p.services[svc.uuid] = svc
	}
	return p
}

// FakePeripheral implements device.Peripheral.
type FakePeripheral struct {
	cfg      PeripheralConfig
	gate     <-chan struct{}
	services map[string]*FakeService

	mu           sync.Mutex
	links        []*FakeLink
	connectCalls int
}

func (p *FakePeripheral) ID() string   { return p.cfg.ID }
func (p *FakePeripheral) Name() string { return p.cfg.Name }

// Connect implements device.Peripheral
func (p *FakePeripheral) Connect(ctx context.Context) (device.Link, error) {
	p.mu.Lock()
	p.connectCalls++
	p.mu.Unlock()

	if p.gate != nil {
		<-p.gate
	}
	if p.cfg.ConnectBlocks {
		<-ctx.Done()
		return nil, device.NewTransportError("connect", ctx.Err())
	}
	if p.cfg.ConnectError != "" {
		return nil, device.NewTransportError("connect", errors.New(p.cfg.ConnectError))
	}

	l := &FakeLink{peripheral: p, connected: true, done: make(chan struct{})}
	p.mu.Lock()
	p.links = append(p.links, l)
	p.mu.Unlock()
	return l, nil
}

// Link returns the most recent link, or nil if never connected.
func (p *FakePeripheral) Link() *FakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.links) == 0 {
		return nil
	}
	return p.links[len(p.links)-1]
}

// OpenLinks counts the links handed out that are still connected.
func (p *FakePeripheral) OpenLinks() int {
	p.mu.Lock()
	links := append([]*FakeLink(nil), p.links...)
	p.mu.Unlock()

	open := 0
	for _, l := range links {
		if l.IsConnected() {
			open++
		}
	}
	return open
}

// ConnectCalls returns how many times Connect was invoked.
func (p *FakePeripheral) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// Characteristic returns the fake characteristic for the given UUIDs, or nil.
func (p *FakePeripheral) Characteristic(serviceUUID, charUUID string) *FakeCharacteristic {
	svc, ok := p.services[device.NormalizeUUID(serviceUUID)]
	if !ok {
		return nil
	}
	return svc.chars[device.NormalizeUUID(charUUID)]
}

// FakeLink implements device.Link.
type FakeLink struct {
	peripheral *FakePeripheral

	mu              sync.Mutex
	connected       bool
	done            chan struct{}
	disconnectCalls int
}

func (l *FakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *FakeLink) Disconnected() <-chan struct{} { return l.done }

// Disconnect implements device.Link
func (l *FakeLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectCalls++
	if l.connected {
		l.connected = false
		close(l.done)
	}
	return nil
}

// DropConnection simulates a link loss reported by the transport.
func (l *FakeLink) DropConnection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		l.connected = false
		close(l.done)
	}
}

// DisconnectCalls returns how many times Disconnect was invoked.
func (l *FakeLink) DisconnectCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnectCalls
}

// GetService implements device.Link
func (l *FakeLink) GetService(ctx context.Context, uuid string) (device.Service, error) {
	if !l.IsConnected() {
		return nil, device.ErrNotConnected
	}
	svc, ok := l.peripheral.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// FakeService implements device.Service.
type FakeService struct {
	uuid  string
	chars map[string]*FakeCharacteristic
}

func (s *FakeService) UUID() string { return s.uuid }

// GetCharacteristic implements device.Service
func (s *FakeService) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	c, ok := s.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
	}
	return c, nil
}

// FakeCharacteristic implements device.Characteristic.
type FakeCharacteristic struct {
	uuid         string
	readErr      error
	subscribeErr error

	mu               sync.Mutex
	value            []byte
	handler          func([]byte)
	subscribeCalls   int
	unsubscribeCalls int
}

func (c *FakeCharacteristic) UUID() string { return c.uuid }

// ReadValue implements device.Characteristic
func (c *FakeCharacteristic) ReadValue(ctx context.Context) ([]byte, error) {
	if c.readErr != nil {
		return nil, device.NewTransportError("read", c.readErr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...), nil
}

// SetValue replaces the value returned by ReadValue.
func (c *FakeCharacteristic) SetValue(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), v...)
}

// Subscribe implements device.Characteristic
func (c *FakeCharacteristic) Subscribe(ctx context.Context, onChange func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls++
	if c.subscribeErr != nil {
		return device.NewTransportError("subscribe", c.subscribeErr)
	}
	c.handler = onChange
	return nil
}

// Unsubscribe implements device.Characteristic
func (c *FakeCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribeCalls++
	c.handler = nil
	return nil
}

// Notify delivers data to the current subscriber. It reports false when
// nobody is subscribed.
func (c *FakeCharacteristic) Notify(data []byte) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(append([]byte(nil), data...))
	return true
}

// IsSubscribed reports whether a notification handler is installed.
func (c *FakeCharacteristic) IsSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// SubscribeCalls returns how many times Subscribe was invoked.
func (c *FakeCharacteristic) SubscribeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeCalls
}

// UnsubscribeCalls returns how many times Unsubscribe was invoked.
func (c *FakeCharacteristic) UnsubscribeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribeCalls
}

// FakeTransport implements device.Transport by handing out queued results.
// With an empty queue RequestDevice blocks until ctx ends, like a chooser
// that is never answered.
type FakeTransport struct {
	mu      sync.Mutex
	queue   []requestResult
	filters []device.Filter
}

type requestResult struct {
	peripheral device.Peripheral
	err        error
}

// NewFakeTransport creates a transport with an empty queue.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Enqueue makes the next RequestDevice calls return the given peripherals.
func (t *FakeTransport) Enqueue(peripherals ...device.Peripheral) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range peripherals {
		t.queue = append(t.queue, requestResult{peripheral: p})
	}
	return t
}

// FailNext makes the next RequestDevice call return err.
func (t *FakeTransport) FailNext(err error) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, requestResult{err: err})
	return t
}

// RequestDevice implements device.Transport
func (t *FakeTransport) RequestDevice(ctx context.Context, filter device.Filter) (device.Peripheral, error) {
	t.mu.Lock()
	t.filters = append(t.filters, filter)
	if len(t.queue) > 0 {
		r := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()
		return r.peripheral, r.err
	}
	t.mu.Unlock()

	<-ctx.Done()
	return nil, device.ErrUserCancelled
}

// Filters returns the filters RequestDevice was called with.
func (t *FakeTransport) Filters() []device.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]device.Filter(nil), t.filters...)
}

var (
	_ device.Transport      = (*FakeTransport)(nil)
	_ device.Peripheral     = (*FakePeripheral)(nil)
	_ device.Link           = (*FakeLink)(nil)
	_ device.Service        = (*FakeService)(nil)
	_ device.Characteristic = (*FakeCharacteristic)(nil)
)
