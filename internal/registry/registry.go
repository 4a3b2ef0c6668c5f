// Package registry keeps the insertion-ordered set of discovered devices and
// their connection status. It is the single source of truth every consumer
// reads from; changes are published on an event stream.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultName is shown until the device reports its own name.
const DefaultName = "Unknown Device"

// DefaultEventBuffer is the event stream capacity used when none is given.
const DefaultEventBuffer = 256

var (
	ErrDuplicateDevice = errors.New("device already registered")
	ErrNotFound        = errors.New("device not found")

	// ErrStateChanged is returned by Transition when the record is no longer
	// in the expected state.
	ErrStateChanged = errors.New("device state changed")
)

// Record is one discovered peripheral and its status.
type Record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Handle       device.Peripheral `json:"-"`
	State        ConnectionState   `json:"state"`
	Measurement  *float64          `json:"measurement"`
	BatteryLevel *int              `json:"battery_level"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Connected reports whether the record is in the Connected state.
func (r Record) Connected() bool { return r.State == Connected }

// Patch is a partial update. Nil fields are left untouched; the Clear flags
// reset the nullable fields to absent.
type Patch struct {
	Name             *string
	State            *ConnectionState
	Measurement      *float64
	BatteryLevel     *int
	ClearMeasurement bool
	ClearBattery     bool
}

func (p Patch) apply(r Record) Record {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.State != nil {
		r.State = *p.State
	}
	if p.ClearMeasurement {
		r.Measurement = nil
	}
	if p.Measurement != nil {
		v := *p.Measurement
		r.Measurement = &v
	}
	if p.ClearBattery {
		r.BatteryLevel = nil
	}
	if p.BatteryLevel != nil {
		v := *p.BatteryLevel
		r.BatteryLevel = &v
	}
	// Readings only exist while connected.
	if r.State != Connected {
		r.Measurement = nil
		r.BatteryLevel = nil
	}
	return r
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// EventType tells what happened to a record.
type EventType int

const (
	Added EventType = iota
	Updated
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler
func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event carries the record as it was after the change (or just before
// removal). Measured is set when the change delivered a new measurement.
type Event struct {
	Type     EventType `json:"type"`
	Record   Record    `json:"device"`
	Measured bool      `json:"measured,omitempty"`
}

// Registry is safe for concurrent use. Records are replaced as a whole on
// every update, so snapshots never observe a partially applied patch.
type Registry struct {
	mu      sync.RWMutex
	records *orderedmap.OrderedMap[string, Record]
	events  *ringchan.RingChannel[Event]
	logger  *logrus.Logger
	now     func() time.Time
}

// New creates an empty registry. eventBuffer <= 0 selects DefaultEventBuffer.
func New(logger *logrus.Logger, eventBuffer int) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Registry{
		records: orderedmap.New[string, Record](),
		events:  ringchan.New[Event](eventBuffer),
		logger:  logger,
		now:     time.Now,
	}
}

// Add inserts rec at the end. An empty name becomes DefaultName.
func (r *Registry) Add(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records.Get(rec.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, rec.ID)
	}
	if rec.Name == "" {
		rec.Name = DefaultName
	}
	rec = Patch{}.apply(rec)
	rec.UpdatedAt = r.now()
	r.records.Set(rec.ID, rec)

	r.logger.WithFields(logrus.Fields{
		"device_id": rec.ID,
		"name":      rec.Name,
	}).Debug("Device added")
	r.publish(Added, rec)
	return nil
}

// UpdateStatus applies p to the record with the given id and returns the result.
func (r *Registry) UpdateStatus(id string, p Patch) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec = p.apply(rec)
	rec.UpdatedAt = r.now()
	r.records.Set(id, rec)

	r.events.Send(Event{Type: Updated, Record: rec, Measured: p.Measurement != nil && rec.Measurement != nil})
	return rec, nil
}

// Transition applies p only while the record is still in state from.
func (r *Registry) Transition(id string, from ConnectionState, p Patch) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.State != from {
		return Record{}, fmt.Errorf("%w: %s is %s, expected %s", ErrStateChanged, id, rec.State, from)
	}
	rec = p.apply(rec)
	rec.UpdatedAt = r.now()
	r.records.Set(id, rec)

	r.events.Send(Event{Type: Updated, Record: rec, Measured: p.Measurement != nil && rec.Measurement != nil})
	return rec, nil
}

// Remove deletes the record and returns it.
func (r *Registry) Remove(id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Delete(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.logger.WithField("device_id", id).Debug("Device removed")
	r.publish(Removed, rec)
	return rec, nil
}

// ResetAll moves every record to Disconnected without removing any.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := Disconnected
	now := r.now()
	for pair := r.records.Oldest(); pair != nil; pair = pair.Next() {
		rec := Patch{State: &state}.apply(pair.Value)
		rec.UpdatedAt = now
		pair.Value = rec
		r.publish(Updated, rec)
	}
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records.Get(id)
	return rec, ok
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records.Len()
}

// Snapshot returns all records in insertion order.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, r.records.Len())
	for pair := r.records.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Events returns the change stream. When the consumer falls behind the
// oldest events are dropped; Snapshot is always authoritative.
func (r *Registry) Events() <-chan Event {
	return r.events.C()
}

// Close ends the event stream.
func (r *Registry) Close() {
	r.events.Close()
}

// publish must be called with mu held so events keep mutation order.
func (r *Registry) publish(t EventType, rec Record) {
	r.events.Send(Event{Type: t, Record: rec})
}
