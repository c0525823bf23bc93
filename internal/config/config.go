// Package config loads and validates the bridge configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blemon/internal/registry"
)

// Config holds application configuration
type Config struct {
	LogLevel string   `yaml:"log_level" default:"info"`
	MQTT     MQTT     `yaml:"mqtt"`
	Scan     Scan     `yaml:"scan"`
	Devices  []Device `yaml:"devices"`
}

// MQTT configures the broker session.
type MQTT struct {
	Host           string        `yaml:"host" default:"localhost"`
	Port           int           `yaml:"port" default:"1883"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id" default:"blemon"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"blemon"`
	KeepAlive      time.Duration `yaml:"keep_alive" default:"60s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`

	// TelemetryQoS is the delivery guarantee for telemetry messages.
	// At-most-once (0) avoids backlog amplification under flapping
	// connections; presence messages are always at-least-once.
	TelemetryQoS byte `yaml:"telemetry_qos" default:"0"`
}

// Scan configures the scan/tracking side of the bridge.
type Scan struct {
	DeviceTimeout  time.Duration `yaml:"device_timeout" default:"30s"`
	SweepInterval  time.Duration `yaml:"sweep_interval" default:"1s"`
	BufferSize     int           `yaml:"buffer_size" default:"64"`
	DrainTimeout   time.Duration `yaml:"drain_timeout" default:"5s"`
	BackoffInitial time.Duration `yaml:"backoff_initial" default:"1s"`
	BackoffMax     time.Duration `yaml:"backoff_max" default:"30s"`
}

// Device is one configured BLE peripheral.
type Device struct {
	Address      string        `yaml:"address"`
	Name         string        `yaml:"name"`
	Manufacturer string        `yaml:"manufacturer"`
	Timeout      time.Duration `yaml:"timeout"`
	Topic        string        `yaml:"topic"`
}

// Default returns a configuration with all default values applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML configuration over defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host must not be empty")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
	}
	if c.MQTT.TelemetryQoS > 1 {
		return fmt.Errorf("mqtt.telemetry_qos must be 0 or 1, got %d", c.MQTT.TelemetryQoS)
	}
	if c.Scan.SweepInterval <= 0 {
		return fmt.Errorf("scan.sweep_interval must be positive")
	}
	if c.Scan.DeviceTimeout <= 0 {
		return fmt.Errorf("scan.device_timeout must be positive")
	}
	if c.Scan.BufferSize <= 0 {
		return fmt.Errorf("scan.buffer_size must be positive")
	}
	if c.Scan.BackoffInitial <= 0 || c.Scan.BackoffMax < c.Scan.BackoffInitial {
		return fmt.Errorf("scan backoff bounds invalid: initial=%v max=%v",
			c.Scan.BackoffInitial, c.Scan.BackoffMax)
	}

	// Device entries are validated for real by registry construction; fail
	// fast here so a bad entry is reported as a config error at startup.
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the device registry from the configured device list.
func (c *Config) Registry() (*registry.Registry, error) {
	devices := make([]registry.DeviceConfig, 0, len(c.Devices))
	for i, d := range c.Devices {
		m, err := registry.ParseManufacturer(d.Manufacturer)
		if err != nil {
			return nil, fmt.Errorf("device %d (%q): %w", i, d.Name, err)
		}
		devices = append(devices, registry.DeviceConfig{
			Address:      d.Address,
			Name:         d.Name,
			Manufacturer: m,
			Timeout:      d.Timeout,
			Topic:        d.Topic,
		})
	}
	return registry.New(devices)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
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
