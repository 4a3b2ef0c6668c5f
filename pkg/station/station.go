// Package station is the entry point for consumers: it owns the device
// registry, the connection lifecycle and the discovery gateway, and fans the
// registry change stream out to any number of subscribers.
package station

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/discovery"
	"github.com/srg/uwave/internal/groutine"
	"github.com/srg/uwave/internal/lifecycle"
	"github.com/srg/uwave/internal/registry"
	"github.com/srg/uwave/internal/ringchan"
)

// DefaultSubscriberBuffer is used by Subscribe when size <= 0.
const DefaultSubscriberBuffer = 64

// SinkBuffer is how many events a sink may fall behind before it loses the
// oldest ones.
const SinkBuffer = 1024

// Sink receives every registry event, in order, on a goroutine of its own.
// A slow sink delays only itself.
type Sink interface {
	HandleEvent(ev registry.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev registry.Event)

func (f SinkFunc) HandleEvent(ev registry.Event) { f(ev) }

// Options configures a Station.
type Options struct {
	ConnectTimeout     time.Duration
	EventBuffer        int
	NotificationBuffer uint32
}

// Station wires the core components together.
type Station struct {
	reg       *registry.Registry
	lifecycle *lifecycle.Manager
	gateway   *discovery.Gateway
	logger    *logrus.Logger

	mu     sync.Mutex
	sinks  []*sinkWorker
	subs   map[int]*ringchan.RingChannel[registry.Event]
	nextID int
	closed bool

	done      <-chan struct{}
	closeOnce sync.Once
}

// New creates a Station on top of transport and starts its event fan-out.
func New(transport device.Transport, logger *logrus.Logger, opts Options) *Station {
	if logger == nil {
		logger = logrus.New()
	}
	reg := registry.New(logger, opts.EventBuffer)
	s := &Station{
		reg: reg,
		lifecycle: lifecycle.NewManager(reg, logger, lifecycle.Options{
			ConnectTimeout:     opts.ConnectTimeout,
			NotificationBuffer: opts.NotificationBuffer,
		}),
		gateway: discovery.NewGateway(transport, reg, logger),
		logger:  logger,
		subs:    make(map[int]*ringchan.RingChannel[registry.Event]),
	}
	s.done = groutine.GoWait(context.Background(), "station-fanout", func(ctx context.Context) {
		s.fanOut()
	})
	return s
}

// Snapshot returns every device record in discovery order.
func (s *Station) Snapshot() []registry.Record {
	return s.reg.Snapshot()
}

// Device returns one record.
func (s *Station) Device(id string) (registry.Record, bool) {
	return s.reg.Get(id)
}

// Discover asks the transport for a device and registers it.
func (s *Station) Discover(ctx context.Context) (discovery.Result, error) {
	return s.gateway.Discover(ctx)
}

// Connect runs the connect sequence for a registered device.
func (s *Station) Connect(ctx context.Context, id string) error {
	return s.lifecycle.Connect(ctx, id)
}

// Disconnect tears down the device's connection and removes it.
func (s *Station) Disconnect(id string) error {
	return s.lifecycle.Disconnect(id)
}

// DisconnectAll disconnects every device and keeps the records.
func (s *Station) DisconnectAll() error {
	return s.lifecycle.DisconnectAll()
}

type sinkWorker struct {
	events *ringchan.RingChannel[registry.Event]
	done   <-chan struct{}
}

// AddSink registers an event consumer. Close waits for every sink to drain.
func (s *Station) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("Sink added after close, ignoring")
		return
	}
	events := ringchan.New[registry.Event](SinkBuffer)
	done := groutine.GoWait(context.Background(), "station-sink", func(ctx context.Context) {
		for ev := range events.C() {
			sink.HandleEvent(ev)
		}
	})
	s.sinks = append(s.sinks, &sinkWorker{events: events, done: done})
}

// Subscribe returns a private event stream and a function that ends it.
// Slow subscribers lose their oldest events, never block the station.
func (s *Station) Subscribe(size int) (<-chan registry.Event, func()) {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	rc := ringchan.New[registry.Event](size)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.closed {
		rc.Close()
	} else {
		s.subs[id] = rc
	}
	s.mu.Unlock()

	var once sync.Once
	return rc.C(), func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			rc.Close()
		})
	}
}

func (s *Station) fanOut() {
	for ev := range s.reg.Events() {
		s.mu.Lock()
		for _, w := range s.sinks {
			w.events.Send(ev)
		}
		for _, rc := range s.subs {
			rc.Send(ev)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.closed = true
	for _, w := range s.sinks {
		w.events.Close()
	}
	for id, rc := range s.subs {
		rc.Close()
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

// Run blocks until ctx ends, then closes the station.
func (s *Station) Run(ctx context.Context) error {
	<-ctx.Done()
	if err := s.Close(); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Close disconnects every device, then ends all event streams once the
// final events have been delivered and every sink has handled them.
func (s *Station) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.lifecycle.Close()
		s.reg.Close()
		<-s.done

		s.mu.Lock()
		sinks := s.sinks
		s.mu.Unlock()
		for _, w := range sinks {
			<-w.done
			if n := w.events.Dropped(); n > 0 {
				s.logger.WithField("dropped", n).Warn("Sink fell behind and lost events")
			}
		}
		s.logger.Debug("Station closed")
	})
	return err
}
