// Package discovery asks the transport for a UWAVE peripheral and registers
// it, ignoring devices that are already known.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/registry"
)

// Filter is the fixed request filter: the measurement service or the
// advertised name, with read access to GAP and battery. Ids in known are
// skipped by the scan.
func Filter(known ...string) device.Filter {
	return device.Filter{
		Services:         []string{device.MeasurementServiceUUID},
		Names:            []string{device.AdvertisedName},
		OptionalServices: []string{device.GenericAccessServiceUUID, device.BatteryServiceUUID},
		Exclude:          known,
	}
}

// Result of a discovery. Added is false when the device was already registered.
type Result struct {
	Record registry.Record
	Added  bool
}

// Gateway wraps a transport's device request with registry de-duplication.
type Gateway struct {
	transport device.Transport
	reg       *registry.Registry
	logger    *logrus.Logger
}

func NewGateway(transport device.Transport, reg *registry.Registry, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{transport: transport, reg: reg, logger: logger}
}

// Discover requests one device, asking the transport to skip ids already in
// the registry. A transport that ignores the exclusion still cannot create a
// duplicate record. Cancellation of ctx, or the transport giving
// up without a selection, yields device.ErrUserCancelled; any other transport
// failure is a *device.TransportError.
func (g *Gateway) Discover(ctx context.Context) (Result, error) {
	p, err := g.transport.RequestDevice(ctx, Filter(g.knownIDs()...))
	if err != nil {
		if errors.Is(err, device.ErrUserCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			g.logger.Debug("Device request cancelled")
			return Result{}, device.ErrUserCancelled
		}
		g.logger.WithError(err).Error("Device request failed")
		return Result{}, device.NewTransportError("request", err)
	}
	if p == nil {
		return Result{}, device.ErrUserCancelled
	}

	if existing, ok := g.reg.Get(p.ID()); ok {
		g.logger.WithField("device_id", p.ID()).Debug("Device already registered")
		return Result{Record: existing}, nil
	}

	rec := registry.Record{ID: p.ID(), Name: p.Name(), Handle: p}
	if err := g.reg.Add(rec); err != nil {
		// Lost a race with a concurrent discovery of the same device.
		if errors.Is(err, registry.ErrDuplicateDevice) {
			existing, _ := g.reg.Get(p.ID())
			return Result{Record: existing}, nil
		}
		return Result{}, fmt.Errorf("register %s: %w", p.ID(), err)
	}

	added, _ := g.reg.Get(p.ID())
	g.logger.WithFields(logrus.Fields{
		"device_id": added.ID,
		"name":      added.Name,
	}).Info("Device discovered")
	return Result{Record: added, Added: true}, nil
}

func (g *Gateway) knownIDs() []string {
	snap := g.reg.Snapshot()
	ids := make([]string, 0, len(snap))
	for _, rec := range snap {
		ids = append(ids, rec.ID)
	}
	return ids
}
