package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel           string        `yaml:"log_level" default:"info"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" default:"30s"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"20s"`
	EventBuffer        int           `yaml:"event_buffer" default:"256"`
	NotificationBuffer uint32        `yaml:"notification_buffer" default:"1024"`
	OutputFormat       string        `yaml:"output_format" default:"table"`

	HTTP   HTTPConfig   `yaml:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// HTTPConfig configures the API server of the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// MQTTConfig configures the state publisher. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	TopicPrefix string        `yaml:"topic_prefix" default:"uwave"`
	ClientID    string        `yaml:"client_id" default:"uwave-station"`
	QoS         byte          `yaml:"qos" default:"1"`
	Timeout     time.Duration `yaml:"timeout" default:"5s"`
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool { return c.Broker != "" }

// SQLiteConfig configures the measurement log. An empty Path disables it.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a database path is configured.
func (c SQLiteConfig) Enabled() bool { return c.Path != "" }

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format: %s (must be table or json)", c.OutputFormat)
	}
	if c.ScanTimeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
