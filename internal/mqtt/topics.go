package mqtt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/srg/blemon/internal/events"
)

// Topics builds the bridge's topic names under a fixed prefix.
//
// Device topics use the flat scheme <prefix>/<device>/<kind>:
//
//	topics := mqtt.Topics{Prefix: "blemon"}
//	topics.Presence("kitchen_sensor")  // "blemon/kitchen_sensor/presence"
//	topics.State("kitchen_sensor")     // "blemon/kitchen_sensor/state"
type Topics struct {
	Prefix string
}

// Presence returns the presence topic for a device segment.
func (t Topics) Presence(segment string) string {
	return fmt.Sprintf("%s/%s/presence", t.Prefix, segment)
}

// State returns the telemetry topic for a device segment.
func (t Topics) State(segment string) string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, segment)
}

// BridgeStatus returns the bridge's own status topic, used for the online
// message and the LWT.
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.Prefix)
}

// ScanArrive returns the arrival scan request topic.
func (t Topics) ScanArrive() string {
	return fmt.Sprintf("%s/scan/arrive", t.Prefix)
}

// ScanDepart returns the departure scan request topic.
func (t Topics) ScanDepart() string {
	return fmt.Sprintf("%s/scan/depart", t.Prefix)
}

// ForEvent returns the topic an event publishes to.
func (t Topics) ForEvent(ev events.Event) string {
	segment := DeviceSegment(ev)
	if ev.Kind == events.Telemetry {
		return t.State(segment)
	}
	return t.Presence(segment)
}

// DeviceSegment returns the topic segment for an event's device: the
// configured override if present, otherwise the sanitized device name.
func DeviceSegment(ev events.Event) string {
	if ev.Topic != "" {
		return ev.Topic
	}
	return SanitizeName(ev.Name)
}

// SanitizeName lowercases a device name and replaces every non-alphanumeric
// rune with an underscore, making it safe as a topic segment.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
