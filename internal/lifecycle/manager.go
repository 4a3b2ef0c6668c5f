// Package lifecycle drives the per-device connection sequence and keeps the
// registry in step with the transport: connect, read the GAP name, subscribe
// to measurements, read the battery, and tear everything down again.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/groutine"
	"github.com/srg/uwave/internal/payload"
	"github.com/srg/uwave/internal/registry"
)

// Options configures a Manager.
type Options struct {
	// ConnectTimeout bounds the connect and name-read steps. Zero means no limit.
	ConnectTimeout time.Duration
	// NotificationBuffer is the notification pump capacity.
	NotificationBuffer uint32
}

// session is one connect attempt and, once it succeeds, the live state of
// the connected device. A closed session never touches the registry again.
type session struct {
	id     string
	cancel context.CancelFunc
	closed atomic.Bool

	mu        sync.Mutex
	name      string
	link      device.Link
	char      device.Characteristic
	connected bool
}

// close marks the session closed and hands back what needs tearing down.
// ok is false when it was already closed.
func (s *session) close() (link device.Link, char device.Characteristic, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil, nil, false
	}
	s.connected = false
	return s.link, s.char, true
}

// attach records the transport link; false when the session was closed
// while the transport was connecting.
func (s *session) attach(link device.Link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.link = link
	return true
}

func (s *session) deviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed.Load()
}

// Manager owns the transport sessions of every device in a registry.
type Manager struct {
	reg      *registry.Registry
	logger   *logrus.Logger
	opts     Options
	sessions *hashmap.Map[string, *session]
	pump     *pump

	// serializes session map changes with the registry writes they fence;
	// lock order is session.mu, then mu, then the registry
	mu sync.Mutex

	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewManager creates a Manager and starts its notification dispatcher.
func NewManager(reg *registry.Registry, logger *logrus.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		reg:      reg,
		logger:   logger,
		opts:     opts,
		sessions: hashmap.New[string, *session](),
	}
	m.pump = newPump(opts.NotificationBuffer, m.applyNotification, logger)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.pump.start(ctx)
	return m
}

// Connect runs the connect sequence for a registered device. It returns once
// the device is Connected; measurement and battery failures are only logged.
// A Disconnect or DisconnectAll issued meanwhile aborts it with
// ErrConnectAborted and closes whatever link it had opened.
func (m *Manager) Connect(ctx context.Context, id string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, rec, err := m.beginConnect(id, cancel)
	if err != nil {
		return err
	}
	log := m.logger.WithField("device_id", id)
	log.Info("Connecting to device...")

	stepCtx, stepCancel := m.stepContext(attemptCtx)
	defer stepCancel()

	if rec.Handle == nil {
		return m.failConnect(sess, StepConnect, errors.New("device has no transport handle"), nil)
	}
	link, err := rec.Handle.Connect(stepCtx)
	if err != nil {
		return m.failConnect(sess, StepConnect, err, nil)
	}
	if !sess.attach(link) {
		m.dropLink(id, link)
		return m.aborted(id, nil)
	}

	name, err := readDeviceName(stepCtx, link)
	if err != nil {
		return m.failConnect(sess, StepReadName, err, link)
	}

	rec, err = m.markConnected(sess, name)
	if err != nil {
		if cerr := m.closeSession(sess); cerr != nil {
			log.WithError(cerr).Debug("Teardown after aborted connect returned error")
		}
		return m.aborted(id, err)
	}
	log.WithField("name", rec.Name).Info("Device connected")
	m.watchLink(sess)

	if err := m.subscribeMeasurement(attemptCtx, sess); err != nil {
		m.logSecondary(&SecondaryFeatureError{DeviceID: id, Feature: FeatureMeasurement, Err: err})
	}
	if err := m.readBattery(attemptCtx, sess); err != nil {
		m.logSecondary(&SecondaryFeatureError{DeviceID: id, Feature: FeatureBattery, Err: err})
	}
	return nil
}

// beginConnect moves the record to Connecting and registers the attempt. Any
// session still stored under id is closed.
func (m *Manager) beginConnect(id string, cancel context.CancelFunc) (*session, registry.Record, error) {
	m.mu.Lock()
	rec, ok := m.reg.Get(id)
	if !ok {
		m.mu.Unlock()
		return nil, registry.Record{}, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	if rec.State != registry.Disconnected {
		m.mu.Unlock()
		return nil, registry.Record{}, fmt.Errorf("%w: %s is %s", ErrAlreadyConnecting, id, rec.State)
	}
	rec, err := m.reg.UpdateStatus(id, registry.Patch{
		State:            registry.Ptr(registry.Connecting),
		ClearMeasurement: true,
		ClearBattery:     true,
	})
	if err != nil {
		m.mu.Unlock()
		return nil, registry.Record{}, err
	}
	sess := &session{id: id, cancel: cancel, name: rec.Name}
	stale, hadStale := m.sessions.Get(id)
	m.sessions.Set(id, sess)
	m.mu.Unlock()

	if hadStale {
		if err := m.closeSession(stale); err != nil {
			m.logger.WithFields(logrus.Fields{
				"device_id": id,
				"error":     err,
			}).Debug("Closing replaced session returned error")
		}
	}
	return sess, rec, nil
}

// markConnected is the Connecting → Connected step. It fails when the
// session was closed or the record left Connecting in the meantime.
func (m *Manager) markConnected(sess *session, name string) (registry.Record, error) {
	patch := registry.Patch{State: registry.Ptr(registry.Connected)}
	if name != "" {
		patch.Name = &name
	}

	var rec registry.Record
	var err error
	if !m.writeIfCurrent(sess, func() {
		if rec, err = m.reg.Transition(sess.id, registry.Connecting, patch); err == nil {
			sess.name = rec.Name
			sess.connected = true
		}
	}) {
		return registry.Record{}, ErrConnectAborted
	}
	return rec, err
}

// writeIfCurrent runs fn while sess is open and still the session registered
// for its device, holding both locks so no disconnect can interleave.
func (m *Manager) writeIfCurrent(sess *session, fn func()) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed.Load() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions.Get(sess.id); !ok || cur != sess {
		return false
	}
	fn()
	return true
}

func (m *Manager) aborted(id string, cause error) error {
	m.logger.WithFields(logrus.Fields{
		"device_id": id,
		"error":     cause,
	}).Info("Connect aborted")
	if cause == nil || errors.Is(cause, ErrConnectAborted) {
		return fmt.Errorf("%w: %s", ErrConnectAborted, id)
	}
	return fmt.Errorf("%w: %w", ErrConnectAborted, cause)
}

func (m *Manager) dropLink(id string, link device.Link) {
	if err := link.Disconnect(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device_id": id,
			"error":     err,
		}).Debug("Disconnect after failed step returned error")
	}
}

// removeSession deletes sess from the map unless a newer attempt replaced it.
func (m *Manager) removeSession(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions.Get(sess.id); ok && cur == sess {
		m.sessions.Del(sess.id)
	}
}

func (m *Manager) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.ConnectTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.ConnectTimeout)
	}
	return context.WithCancel(ctx)
}

// failConnect reverts the record to Disconnected without touching its name.
// When the session was already closed by a disconnect, the closer owns the
// record and the attempt reports ErrConnectAborted instead.
func (m *Manager) failConnect(sess *session, step string, cause error, link device.Link) error {
	if link != nil {
		m.dropLink(sess.id, link)
	}

	sess.mu.Lock()
	current := false
	if sess.closed.CompareAndSwap(false, true) {
		m.mu.Lock()
		if cur, ok := m.sessions.Get(sess.id); ok && cur == sess {
			current = true
			m.sessions.Del(sess.id)
			if _, err := m.reg.UpdateStatus(sess.id, registry.Patch{State: registry.Ptr(registry.Disconnected)}); err != nil && !errors.Is(err, registry.ErrNotFound) {
				m.logger.WithError(err).Warn("Failed to revert device state")
			}
		}
		m.mu.Unlock()
	}
	sess.mu.Unlock()

	if !current {
		return m.aborted(sess.id, nil)
	}

	cerr := &ConnectionError{DeviceID: sess.id, Step: step, Err: cause}
	m.logger.WithFields(logrus.Fields{
		"device_id": sess.id,
		"step":      step,
		"error":     cause,
	}).Error("Connection failed")
	return cerr
}

// readDeviceName reads the GAP device name. Trailing NULs and whitespace are
// stripped; invalid UTF-8 is replaced.
func readDeviceName(ctx context.Context, link device.Link) (string, error) {
	svc, err := link.GetService(ctx, device.GenericAccessServiceUUID)
	if err != nil {
		return "", err
	}
	char, err := svc.GetCharacteristic(ctx, device.DeviceNameCharUUID)
	if err != nil {
		return "", err
	}
	data, err := char.ReadValue(ctx)
	if err != nil {
		return "", err
	}
	name := strings.ToValidUTF8(string(data), "\uFFFD")
	name = strings.TrimRight(name, "\x00")
	return strings.TrimSpace(name), nil
}

func (m *Manager) subscribeMeasurement(ctx context.Context, sess *session) error {
	svc, err := sess.link.GetService(ctx, device.MeasurementServiceUUID)
	if err != nil {
		return err
	}
	char, err := svc.GetCharacteristic(ctx, device.MeasurementCharacteristicUUID)
	if err != nil {
		return err
	}
	if err := char.Subscribe(ctx, func(data []byte) {
		m.pump.push(notification{sess: sess, data: data})
	}); err != nil {
		return err
	}

	sess.mu.Lock()
	closed := sess.closed.Load()
	if !closed {
		sess.char = char
	}
	sess.mu.Unlock()

	// A disconnect raced the subscription.
	if closed {
		_ = char.Unsubscribe()
	}
	return nil
}

func (m *Manager) readBattery(ctx context.Context, sess *session) error {
	svc, err := sess.link.GetService(ctx, device.BatteryServiceUUID)
	if err != nil {
		return err
	}
	char, err := svc.GetCharacteristic(ctx, device.BatteryLevelUUID)
	if err != nil {
		return err
	}
	data, err := char.ReadValue(ctx)
	if err != nil {
		return err
	}
	level, err := payload.DecodeBatteryLevel(data)
	if err != nil {
		return err
	}
	m.writeIfCurrent(sess, func() {
		_, err = m.reg.UpdateStatus(sess.id, registry.Patch{BatteryLevel: &level})
	})
	return err
}

func (m *Manager) logSecondary(err *SecondaryFeatureError) {
	m.logger.WithFields(logrus.Fields{
		"device_id": err.DeviceID,
		"feature":   err.Feature,
		"error":     err.Err,
	}).Warn("Secondary feature failed")
}

// applyNotification runs on the dispatcher goroutine only.
func (m *Manager) applyNotification(n notification) {
	value, err := payload.DecodeMeasurement(n.data, n.sess.deviceName())
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device_id": n.sess.id,
			"error":     err,
		}).Debug("Dropping undecodable notification")
		return
	}

	m.writeIfCurrent(n.sess, func() {
		if _, err := m.reg.UpdateStatus(n.sess.id, registry.Patch{Measurement: &value}); err != nil {
			m.logger.WithFields(logrus.Fields{
				"device_id": n.sess.id,
				"error":     err,
			}).Debug("Measurement for unknown device")
		}
	})
}

// watchLink reverts the record when the transport drops the link on its own.
func (m *Manager) watchLink(sess *session) {
	groutine.Go(context.Background(), "link-monitor-"+sess.id, func(ctx context.Context) {
		sess.mu.Lock()
		link := sess.link
		sess.mu.Unlock()

		<-link.Disconnected()

		sess.mu.Lock()
		if !sess.closed.CompareAndSwap(false, true) {
			sess.mu.Unlock()
			return
		}
		sess.connected = false
		char := sess.char
		m.mu.Lock()
		if cur, ok := m.sessions.Get(sess.id); ok && cur == sess {
			m.sessions.Del(sess.id)
			if _, err := m.reg.UpdateStatus(sess.id, registry.Patch{State: registry.Ptr(registry.Disconnected)}); err != nil {
				m.logger.WithError(err).Debug("Lost link for removed device")
			}
		}
		m.mu.Unlock()
		sess.mu.Unlock()

		if char != nil {
			_ = char.Unsubscribe()
		}
		m.logger.WithField("device_id", sess.id).Warn("Link lost, marking device disconnected")
	})
}

// closeSession cancels an in-flight attempt, unsubscribes and disconnects.
// It is a no-op for sessions that are already closed.
func (m *Manager) closeSession(sess *session) error {
	link, char, ok := sess.close()
	if !ok {
		return nil
	}
	sess.cancel()
	m.removeSession(sess)

	var errs []error
	if char != nil {
		if err := char.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	if link != nil && link.IsConnected() {
		if err := link.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect closes the device's session, if any, and removes the record.
// A connect still in flight for the device is aborted. Transport errors
// during teardown are logged; the record is removed regardless.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	sess, hasSession := m.sessions.Get(id)
	if hasSession {
		m.sessions.Del(id)
	}
	_, err := m.reg.Remove(id)
	m.mu.Unlock()

	if hasSession {
		if cerr := m.closeSession(sess); cerr != nil {
			m.logger.WithFields(logrus.Fields{
				"device_id": id,
				"error":     cerr,
			}).Warn("Device disconnected with errors")
		}
	}
	if err != nil {
		return err
	}
	m.logger.WithField("device_id", id).Info("Device disconnected and removed")
	return nil
}

// DisconnectAll closes every session, including connects still in flight,
// and resets all records to Disconnected. Records are kept.
func (m *Manager) DisconnectAll() error {
	m.mu.Lock()
	var live []*session
	m.sessions.Range(func(_ string, sess *session) bool {
		live = append(live, sess)
		return true
	})
	for _, sess := range live {
		m.sessions.Del(sess.id)
	}
	m.reg.ResetAll()
	m.mu.Unlock()

	var errs []error
	for _, sess := range live {
		if err := m.closeSession(sess); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sess.id, err))
		}
	}

	m.logger.WithField("sessions", len(live)).Info("All devices disconnected")
	if err := errors.Join(errs...); err != nil {
		m.logger.WithError(err).Warn("Some devices disconnected with errors")
		return err
	}
	return nil
}

// Connected reports whether id has a live session.
func (m *Manager) Connected(id string) bool {
	sess, ok := m.sessions.Get(id)
	return ok && sess.live()
}

// Close disconnects everything and stops the dispatcher.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		err = m.DisconnectAll()
		m.cancel()
		m.pump.wait()
	})
	return err
}
