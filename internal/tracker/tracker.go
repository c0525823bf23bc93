// Package tracker converts raw advertisement sightings into debounced
// presence and telemetry events.
//
// The tracker owns the per-device state table exclusively. It is not safe for
// concurrent use: the bridge drives Apply and Sweep from a single goroutine,
// which is also what gives per-device FIFO ordering of the emitted events.
package tracker

import (
	"hash/fnv"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/events"
	"github.com/srg/blemon/internal/registry"
)

// DefaultDeviceTimeout is used when neither the global nor the per-device
// timeout is configured.
const DefaultDeviceTimeout = 30 * time.Second

// Options configures tracker behavior.
type Options struct {
	// DeviceTimeout is the global present-to-stale timeout. Per-device
	// configuration overrides it.
	DeviceTimeout time.Duration
}

// DeviceState is a snapshot of one tracked device.
type DeviceState struct {
	Address  string
	Name     string
	Presence events.Presence
	LastSeen time.Time
	LastRSSI int
}

// deviceState is the mutable tracking record. Only the tracker mutates it.
type deviceState struct {
	config   registry.DeviceConfig
	presence events.Presence
	lastSeen time.Time
	lastRSSI int

	// lastPayloadHash debounces telemetry: a Telemetry event is emitted only
	// when the payload hash differs from the last emitted one.
	lastPayloadHash uint64
	hasPayloadHash  bool
}

// Tracker is the per-device presence state machine.
type Tracker struct {
	states  *hashmap.Map[string, *deviceState]
	reg     *registry.Registry
	timeout time.Duration
	logger  *logrus.Logger
}

// New creates a tracker with state eagerly pre-populated for every configured
// device, so devices that are never sighted report Unseen explicitly instead
// of being absent.
func New(reg *registry.Registry, opts Options, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}

	timeout := opts.DeviceTimeout
	if timeout <= 0 {
		timeout = DefaultDeviceTimeout
	}

	t := &Tracker{
		states:  hashmap.New[string, *deviceState](),
		reg:     reg,
		timeout: timeout,
		logger:  logger,
	}

	for _, dc := range reg.All() {
		t.states.Set(dc.Address, &deviceState{
			config:   dc,
			presence: events.Unseen,
		})
	}

	return t
}

// Apply consumes one advertisement and returns the events it caused, in
// causal order. Advertisements for unconfigured addresses are discarded
// silently.
func (t *Tracker) Apply(adv device.Advertisement) []events.Event {
	dc, ok := t.reg.Resolve(adv.Address)
	if !ok {
		return nil
	}

	st, ok := t.states.Get(dc.Address)
	if !ok {
		// Registry entries are pre-populated in New; this only happens if the
		// registry and tracker were built from different configs.
		st = &deviceState{config: dc, presence: events.Unseen}
		t.states.Set(dc.Address, st)
	}

	if adv.ObservedAt.After(st.lastSeen) {
		st.lastSeen = adv.ObservedAt
	}
	st.lastRSSI = adv.RSSI

	var out []events.Event

	if st.presence != events.Present {
		st.presence = events.Present
		out = append(out, t.presenceEvent(st, adv.ObservedAt))
		t.logger.WithFields(logrus.Fields{
			"device":  dc.Name,
			"address": dc.Address,
			"rssi":    adv.RSSI,
		}).Info("Device present")
	}

	if payload := telemetryPayload(adv, dc.Manufacturer); payload != nil {
		h := hashPayload(payload)
		if !st.hasPayloadHash || h != st.lastPayloadHash {
			st.lastPayloadHash = h
			st.hasPayloadHash = true
			out = append(out, events.Event{
				Address:   dc.Address,
				Name:      dc.Name,
				Topic:     dc.Topic,
				Kind:      events.Telemetry,
				Presence:  st.presence,
				Payload:   payload,
				RSSI:      adv.RSSI,
				Timestamp: adv.ObservedAt,
			})
		}
	}

	return out
}

// Sweep demotes every Present device whose last sighting is older than its
// timeout. A device refreshed by a concurrent advertisement has a fresh
// lastSeen and is left alone, so the advertisement wins.
func (t *Tracker) Sweep(now time.Time) []events.Event {
	var out []events.Event

	t.states.Range(func(_ string, st *deviceState) bool {
		if st.presence != events.Present {
			return true
		}
		if now.Sub(st.lastSeen) <= t.timeoutFor(st.config) {
			return true
		}

		st.presence = events.Stale
		out = append(out, t.presenceEvent(st, now))
		t.logger.WithFields(logrus.Fields{
			"device":    st.config.Name,
			"address":   st.config.Address,
			"last_seen": st.lastSeen,
		}).Info("Device stale")
		return true
	})

	return out
}

// Snapshot returns a copy of every device's current state.
func (t *Tracker) Snapshot() []DeviceState {
	out := make([]DeviceState, 0, t.states.Len())
	t.states.Range(func(_ string, st *deviceState) bool {
		out = append(out, DeviceState{
			Address:  st.config.Address,
			Name:     st.config.Name,
			Presence: st.presence,
			LastSeen: st.lastSeen,
			LastRSSI: st.lastRSSI,
		})
		return true
	})
	return out
}

func (t *Tracker) presenceEvent(st *deviceState, at time.Time) events.Event {
	return events.Event{
		Address:   st.config.Address,
		Name:      st.config.Name,
		Topic:     st.config.Topic,
		Kind:      events.PresenceChanged,
		Presence:  st.presence,
		RSSI:      st.lastRSSI,
		Timestamp: at,
	}
}

func (t *Tracker) timeoutFor(dc registry.DeviceConfig) time.Duration {
	if dc.Timeout > 0 {
		return dc.Timeout
	}
	return t.timeout
}

// telemetryPayload extracts the telemetry bytes from an advertisement.
// Missing or short manufacturer data degrades to presence-only (nil), as does
// a company identifier that doesn't belong to the configured manufacturer.
func telemetryPayload(adv device.Advertisement, m registry.Manufacturer) []byte {
	companyID, ok := adv.CompanyID()
	if !ok {
		return nil
	}
	if !m.Matches(companyID) {
		return nil
	}
	payload := adv.ManufacturerPayload()
	if len(payload) == 0 {
		return nil
	}
	return payload
}

func hashPayload(payload []byte) uint64 {
	h := fnv.New64a()
	h.Write(payload)
	return h.Sum64()
}
