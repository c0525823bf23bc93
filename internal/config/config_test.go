package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/registry"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "blemon", cfg.MQTT.ClientID)
	assert.Equal(t, "blemon", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 60*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout)
	assert.Equal(t, byte(0), cfg.MQTT.TelemetryQoS)
	assert.Equal(t, 30*time.Second, cfg.Scan.DeviceTimeout)
	assert.Equal(t, 1*time.Second, cfg.Scan.SweepInterval)
	assert.Equal(t, 64, cfg.Scan.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Scan.DrainTimeout)
	assert.Equal(t, 1*time.Second, cfg.Scan.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.Scan.BackoffMax)
	assert.Empty(t, cfg.Devices)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
log_level: debug
mqtt:
  host: broker.local
  port: 8883
  username: bridge
  password: secret
  topic_prefix: home/ble
  telemetry_qos: 1
scan:
  device_timeout: 45s
  sweep_interval: 500ms
  buffer_size: 128
devices:
  - address: "AA:BB:CC:DD:EE:FF"
    name: Kitchen Sensor
    manufacturer: apple
    timeout: 10s
  - address: "11:22:33:44:55:66"
    name: phone
    topic: people/alice
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "home/ble", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.TelemetryQoS)
	assert.Equal(t, 45*time.Second, cfg.Scan.DeviceTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.SweepInterval)
	assert.Equal(t, 128, cfg.Scan.BufferSize)

	// Untouched fields keep their defaults.
	assert.Equal(t, "blemon", cfg.MQTT.ClientID)
	assert.Equal(t, 1*time.Second, cfg.Scan.BackoffInitial)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "Kitchen Sensor", cfg.Devices[0].Name)
	assert.Equal(t, "apple", cfg.Devices[0].Manufacturer)
	assert.Equal(t, 10*time.Second, cfg.Devices[0].Timeout)
	assert.Equal(t, "people/alice", cfg.Devices[1].Topic)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := config.Parse([]byte("mqtt: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.LogLevel = "chatty" },
			wantErr: "invalid log_level",
		},
		{
			name:    "empty host",
			mutate:  func(c *config.Config) { c.MQTT.Host = "" },
			wantErr: "mqtt.host",
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.MQTT.Port = 70000 },
			wantErr: "mqtt.port",
		},
		{
			name:    "telemetry qos 2 unsupported",
			mutate:  func(c *config.Config) { c.MQTT.TelemetryQoS = 2 },
			wantErr: "telemetry_qos",
		},
		{
			name:    "zero sweep interval",
			mutate:  func(c *config.Config) { c.Scan.SweepInterval = 0 },
			wantErr: "sweep_interval",
		},
		{
			name:    "zero device timeout",
			mutate:  func(c *config.Config) { c.Scan.DeviceTimeout = 0 },
			wantErr: "device_timeout",
		},
		{
			name:    "zero buffer size",
			mutate:  func(c *config.Config) { c.Scan.BufferSize = 0 },
			wantErr: "buffer_size",
		},
		{
			name: "backoff max below initial",
			mutate: func(c *config.Config) {
				c.Scan.BackoffInitial = 10 * time.Second
				c.Scan.BackoffMax = time.Second
			},
			wantErr: "backoff bounds",
		},
		{
			name: "invalid device address",
			mutate: func(c *config.Config) {
				c.Devices = []config.Device{{Address: "not-a-mac", Name: "x"}}
			},
			wantErr: "device 0",
		},
		{
			name: "unknown manufacturer",
			mutate: func(c *config.Config) {
				c.Devices = []config.Device{{Address: "AA:BB:CC:DD:EE:FF", Name: "x", Manufacturer: "acme"}}
			},
			wantErr: "unknown manufacturer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  host: broker.local
devices:
  - address: "aa:bb:cc:dd:ee:ff"
    name: sensor
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	require.Len(t, cfg.Devices, 1)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestRegistryBuild(t *testing.T) {
	cfg, err := config.Parse([]byte(`
devices:
  - address: "aa-bb-cc-dd-ee-ff"
    name: sensor
    manufacturer: google
`))
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)

	dc, ok := reg.Resolve("AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	assert.Equal(t, "sensor", dc.Name)
	assert.Equal(t, registry.ManufacturerGoogle, dc.Manufacturer)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warning"

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, formatter.FullTimestamp)
}
