package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/srg/blemon/internal/backoff"
	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/events"
)

const (
	// defaultPublishTimeout is the maximum time to wait for a publish ack.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time allowed for pending operations on
	// disconnect, in milliseconds (paho's unit).
	defaultDisconnectQuiesce = 1000

	// presenceQoS is fixed at-least-once: a missed presence transition stays
	// wrong until the next transition, unlike telemetry which self-corrects.
	presenceQoS byte = 1
)

// buildClientOptions creates paho MQTT options from bridge config.
//
// The initial connect must fail fast: with connect-retry enabled paho retries
// CONNACK refusals internally and the token never carries the error, so a bad
// password would be indistinguishable from an unreachable broker. Connect()
// classifies the CONNACK error instead, and the caller retries under the
// backoff policy. Once a session exists, paho's auto-reconnect recovers
// session loss with reconnect intervals capped at the policy's max.
func buildClientOptions(cfg config.MQTT, policy backoff.Policy, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(policy.Max)

	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	configureLWT(opts, topics, cfg.ClientID)

	return opts
}

// configureLWT sets up the Last Will so subscribers see the bridge go offline
// when it disconnects uncleanly. Retained, so late subscribers see it too.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.BridgeStatus(), buildStatusPayload(clientID, "offline"), presenceQoS, true)
}

// buildStatusPayload creates the JSON payload for bridge status messages.
func buildStatusPayload(clientID, status string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// presencePayload is the wire encoding of a presence transition.
type presencePayload struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Presence  string `json:"presence"`
	RSSI      int    `json:"rssi"`
	Timestamp string `json:"timestamp"`
}

// statePayload is the wire encoding of a telemetry emission. Data carries the
// opaque advertisement payload hex-encoded.
type statePayload struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Data      string `json:"data"`
	RSSI      int    `json:"rssi"`
	Timestamp string `json:"timestamp"`
}

// encodeEvent builds the JSON payload for a bridge event.
func encodeEvent(ev events.Event) ([]byte, error) {
	ts := ev.Timestamp.UTC().Format(time.RFC3339)

	if ev.Kind == events.Telemetry {
		return json.Marshal(statePayload{
			Name:      ev.Name,
			ID:        ev.Address,
			Data:      hex.EncodeToString(ev.Payload),
			RSSI:      ev.RSSI,
			Timestamp: ts,
		})
	}

	presence := "offline"
	if ev.Presence.Online() {
		presence = "online"
	}
	return json.Marshal(presencePayload{
		Name:      ev.Name,
		ID:        ev.Address,
		Presence:  presence,
		RSSI:      ev.RSSI,
		Timestamp: ts,
	})
}
