package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blemon/internal/backoff"
	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/events"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTT{
		Host:           "broker.local",
		Port:           1883,
		Username:       "bridge",
		Password:       "secret",
		ClientID:       "blemon",
		TopicPrefix:    "blemon",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
	policy := backoff.Policy{Initial: 1 * time.Second, Max: 30 * time.Second}

	opts := buildClientOptions(cfg, policy, Topics{Prefix: cfg.TopicPrefix})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1883", opts.Servers[0].String())
	assert.Equal(t, "blemon", opts.ClientID)
	assert.Equal(t, "bridge", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry, "initial connect must fail fast so CONNACK refusals are classifiable")
	assert.Equal(t, 30*time.Second, opts.MaxReconnectInterval)
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)

	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "blemon/bridge/status", opts.WillTopic)
	assert.Equal(t, presenceQoS, opts.WillQos)
	assert.True(t, opts.WillRetained)
}

func TestAnonymousConnectionOmitsCredentials(t *testing.T) {
	opts := buildClientOptions(config.MQTT{Host: "localhost", Port: 1883}, backoff.DefaultPolicy(), Topics{Prefix: "blemon"})
	assert.Empty(t, opts.Username)
	assert.Empty(t, opts.Password)
}

func TestStatusPayload(t *testing.T) {
	var got statusPayload
	require.NoError(t, json.Unmarshal(buildStatusPayload("blemon", "online"), &got))

	assert.Equal(t, "online", got.Status)
	assert.Equal(t, "blemon", got.ClientID)

	ts, err := time.Parse(time.RFC3339, got.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestEncodePresenceEvent(t *testing.T) {
	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	ev := events.Event{
		Address:   "AA:BB:CC:DD:EE:FF",
		Name:      "kitchen-sensor",
		Kind:      events.PresenceChanged,
		Presence:  events.Present,
		RSSI:      -60,
		Timestamp: at,
	}

	raw, err := encodeEvent(ev)
	require.NoError(t, err)

	var got presencePayload
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "kitchen-sensor", got.Name)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", got.ID)
	assert.Equal(t, "online", got.Presence)
	assert.Equal(t, -60, got.RSSI)
	assert.Equal(t, "2026-08-26T12:00:00Z", got.Timestamp)
}

func TestEncodeStaleAndUnseenAsOffline(t *testing.T) {
	for _, p := range []events.Presence{events.Stale, events.Unseen} {
		raw, err := encodeEvent(events.Event{Kind: events.PresenceChanged, Presence: p})
		require.NoError(t, err)

		var got presencePayload
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "offline", got.Presence, "presence %s", p)
	}
}

func TestEncodeTelemetryEvent(t *testing.T) {
	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	ev := events.Event{
		Address:   "AA:BB:CC:DD:EE:FF",
		Name:      "kitchen-sensor",
		Kind:      events.Telemetry,
		Presence:  events.Present,
		Payload:   []byte{0x15, 0x01, 0xFF},
		RSSI:      -58,
		Timestamp: at,
	}

	raw, err := encodeEvent(ev)
	require.NoError(t, err)

	var got statePayload
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "1501ff", got.Data)
	assert.Equal(t, "kitchen-sensor", got.Name)
	assert.Equal(t, -58, got.RSSI)
}
