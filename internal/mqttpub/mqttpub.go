// Package mqttpub mirrors registry state to an MQTT broker as retained
// JSON messages, one topic per device.
package mqttpub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/registry"
	"github.com/srg/uwave/pkg/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

var (
	// ErrConnectionFailed wraps broker connect failures from Dial.
	ErrConnectionFailed = errors.New("mqtt connection failed")
	// ErrPublishFailed wraps publish errors and publish timeouts.
	ErrPublishFailed = errors.New("mqtt publish failed")
)

// Publisher is the subset of pahomqtt.Client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// StatePayload is the retained message body for one device.
type StatePayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Measurement  *float64 `json:"measurement"`
	BatteryLevel *int     `json:"battery_level"`
	UpdatedAt    string   `json:"updated_at"`
}

// Mirror publishes registry events. It implements the station's sink
// contract through HandleEvent.
type Mirror struct {
	pub     Publisher
	conn    pahomqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *logrus.Logger
}

// NewMirror wraps an already connected publisher.
func NewMirror(pub Publisher, prefix string, qos byte, timeout time.Duration, logger *logrus.Logger) *Mirror {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mirror{
		pub:     pub,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: timeout,
		logger:  logger,
	}
}

// Dial connects to the configured broker. The broker holds a retained
// "offline" status as the client's will; "online" is published on connect.
func Dial(cfg config.MQTTConfig, logger *logrus.Logger) (*Mirror, error) {
	m := NewMirror(nil, cfg.TopicPrefix, cfg.QoS, cfg.Timeout, logger)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(m.StatusTopic(), "offline", 1, true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		c.Publish(m.StatusTopic(), 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.logger.WithError(err).Warn("MQTT connection lost")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m.pub = client
	m.conn = client
	m.logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return m, nil
}

// StatusTopic is where the station's own online/offline status lives.
func (m *Mirror) StatusTopic() string { return m.prefix + "/status" }

// StateTopic is the retained state topic of a device.
func (m *Mirror) StateTopic(id string) string {
	return m.prefix + "/" + topicSafe(id) + "/state"
}

// topicSafe replaces MQTT wildcard and separator characters.
func topicSafe(id string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(id)
}

// HandleEvent publishes the record state, or clears the retained message
// when the record was removed.
func (m *Mirror) HandleEvent(ev registry.Event) {
	topic := m.StateTopic(ev.Record.ID)

	var body []byte
	if ev.Type != registry.Removed {
		var err error
		body, err = json.Marshal(NewStatePayload(ev.Record))
		if err != nil {
			m.logger.WithError(err).Error("Failed to encode device state")
			return
		}
	}

	if err := m.publish(topic, body); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device_id": ev.Record.ID,
			"topic":     topic,
			"error":     err,
		}).Warn("Failed to publish device state")
	}
}

// NewStatePayload converts a record to its wire form.
func NewStatePayload(rec registry.Record) StatePayload {
	return StatePayload{
		ID:           rec.ID,
		Name:         rec.Name,
		State:        rec.State.String(),
		Measurement:  rec.Measurement,
		BatteryLevel: rec.BatteryLevel,
		UpdatedAt:    rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (m *Mirror) publish(topic string, body []byte) error {
	if m.pub == nil {
		return fmt.Errorf("%w: not connected", ErrPublishFailed)
	}
	token := m.pub.Publish(topic, m.qos, true, body)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes the offline status and disconnects a dialled client.
func (m *Mirror) Close() error {
	if m.conn == nil {
		return nil
	}
	err := m.publish(m.StatusTopic(), []byte("offline"))
	m.conn.Disconnect(disconnectQuiesce)
	return err
}
