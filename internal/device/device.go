package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/uwave/internal/bledb"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %s not found", e.Resource, DescribeUUID(e.UUIDs[0]))
	default:
		return fmt.Sprintf("%s %s not found in service %s", e.Resource, DescribeUUID(e.UUIDs[len(e.UUIDs)-1]), DescribeUUID(e.UUIDs[0]))
	}
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem reported by the transport
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

var (
	// ErrUserCancelled reports that a device request ended without a selection.
	ErrUserCancelled = errors.New("device request cancelled")

	// ErrTransport matches every TransportError via errors.Is.
	ErrTransport = errors.New("transport error")

	ErrUnsupported = errors.New("unsupported")
)

// TransportError wraps a failed transport call.
type TransportError struct {
	Op  string // "request", "connect", "get-service", "read", ...
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError wraps err unless it is nil or already a TransportError.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Filter selects the peripherals a device request accepts. A peripheral
// matches when it advertises any of Services or its local name equals any of
// Names. OptionalServices lists services the caller will access after
// connecting without requiring them to be advertised.
type Filter struct {
	Services         []string
	Names            []string
	OptionalServices []string
}

// Matches reports whether an advertisement with the given local name and
// service UUIDs satisfies the filter. An empty filter matches everything.
func (f Filter) Matches(localName string, services []string) bool {
	if len(f.Services) == 0 && len(f.Names) == 0 {
		return true
	}
	for _, n := range f.Names {
		if n == localName {
			return true
		}
	}
	for _, want := range f.Services {
		for _, got := range services {
			if bledb.EqualUUID(want, got) {
				return true
			}
		}
	}
	return false
}

// Advertisement is the subset of advertising data the station uses.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Transport is the platform capability used to request peripherals.
type Transport interface {
	// RequestDevice blocks until a peripheral matching filter is found.
	// It returns ErrUserCancelled when ctx ends first.
	RequestDevice(ctx context.Context, filter Filter) (Peripheral, error)
}

// Peripheral is an opaque handle to a discovered device.
type Peripheral interface {
	ID() string
	Name() string
	Connect(ctx context.Context) (Link, error)
}

// Link is a live GATT connection.
type Link interface {
	IsConnected() bool
	Disconnect() error
	// Disconnected is closed once the link goes down for any reason.
	Disconnected() <-chan struct{}
	GetService(ctx context.Context, uuid string) (Service, error)
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	GetCharacteristic(ctx context.Context, uuid string) (Characteristic, error)
}

// Characteristic is a discovered GATT characteristic.
type Characteristic interface {
	UUID() string
	ReadValue(ctx context.Context) ([]byte, error)
	// Subscribe enables notifications; onChange receives a private copy of
	// every notified value until Unsubscribe is called.
	Subscribe(ctx context.Context, onChange func([]byte)) error
	Unsubscribe() error
}
