// Package events defines the bridge event values flowing from the tracker to
// the publisher, and the bounded channel that carries them.
package events

import "time"

// Presence is the tracked reachability of a configured device.
type Presence int

const (
	// Unseen means no advertisement has ever been observed for the device.
	Unseen Presence = iota
	// Present means an advertisement was observed within the device timeout.
	Present
	// Stale means the device was present but has not advertised for longer
	// than its timeout.
	Stale
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Stale:
		return "stale"
	default:
		return "unseen"
	}
}

// Online reports whether the presence maps to the "online" wire value.
func (p Presence) Online() bool {
	return p == Present
}

// Kind discriminates bridge event payloads.
type Kind int

const (
	// PresenceChanged signals a presence transition for a device.
	PresenceChanged Kind = iota
	// Telemetry carries a changed advertisement payload for a device.
	Telemetry
)

func (k Kind) String() string {
	if k == Telemetry {
		return "telemetry"
	}
	return "presence"
}

// Event is a single state-change or telemetry emission for one device.
// Produced by the tracker, consumed by the publisher, then discarded.
type Event struct {
	Address   string
	Name      string
	Topic     string // optional per-device topic segment override
	Kind      Kind
	Presence  Presence
	Payload   []byte
	RSSI      int
	Timestamp time.Time
}
