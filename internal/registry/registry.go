// Package registry holds the static device configuration: the mapping from
// hardware address to logical device identity. It is read-only after
// construction; every other component looks devices up here and none of them
// mutates it.
package registry

import (
	"fmt"
	"net"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Manufacturer restricts telemetry extraction to a vendor's advertisement
// blocks. Optional; an empty value accepts any manufacturer data.
type Manufacturer string

const (
	ManufacturerNone   Manufacturer = ""
	ManufacturerApple  Manufacturer = "apple"
	ManufacturerGoogle Manufacturer = "google"
)

// CompanyIDs returns the Bluetooth SIG company identifiers assigned to the
// manufacturer.
// https://bitbucket.org/bluetooth-SIG/public/src/main/assigned_numbers/company_identifiers/company_identifiers.yaml
func (m Manufacturer) CompanyIDs() []uint16 {
	switch m {
	case ManufacturerApple:
		return []uint16{0x004C}
	case ManufacturerGoogle:
		return []uint16{0x018E, 0x00E0}
	default:
		return nil
	}
}

// ParseManufacturer validates a manufacturer string from configuration.
func ParseManufacturer(s string) (Manufacturer, error) {
	switch Manufacturer(strings.ToLower(s)) {
	case ManufacturerNone:
		return ManufacturerNone, nil
	case ManufacturerApple:
		return ManufacturerApple, nil
	case ManufacturerGoogle:
		return ManufacturerGoogle, nil
	default:
		return ManufacturerNone, fmt.Errorf("unknown manufacturer %q", s)
	}
}

// Matches reports whether an advertisement's company identifier belongs to
// the manufacturer. The none value matches everything.
func (m Manufacturer) Matches(companyID uint16) bool {
	ids := m.CompanyIDs()
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == companyID {
			return true
		}
	}
	return false
}

// DeviceConfig is one configured device. Immutable after load.
type DeviceConfig struct {
	Address      string // canonical upper-case MAC form
	Name         string
	Manufacturer Manufacturer
	Timeout      time.Duration // 0 = use the global device timeout
	Topic        string        // optional topic segment override
}

// Registry maps canonical hardware addresses to device configuration.
// Iteration order is configuration order so startup behavior is
// deterministic.
type Registry struct {
	devices *orderedmap.OrderedMap[string, DeviceConfig]
}

// New builds a registry from configured devices. It canonicalizes addresses
// and rejects invalid MACs, empty names, and duplicate addresses.
func New(devices []DeviceConfig) (*Registry, error) {
	m := orderedmap.New[string, DeviceConfig]()

	for i, dc := range devices {
		addr, err := NormalizeAddress(dc.Address)
		if err != nil {
			return nil, fmt.Errorf("device %d (%q): %w", i, dc.Name, err)
		}
		if dc.Name == "" {
			return nil, fmt.Errorf("device %d (%s): name must not be empty", i, addr)
		}
		if _, exists := m.Get(addr); exists {
			return nil, fmt.Errorf("device %d (%q): duplicate address %s", i, dc.Name, addr)
		}
		dc.Address = addr
		m.Set(addr, dc)
	}

	return &Registry{devices: m}, nil
}

// Resolve looks a device up by hardware address in any accepted MAC notation.
func (r *Registry) Resolve(address string) (DeviceConfig, bool) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return DeviceConfig{}, false
	}
	return r.devices.Get(addr)
}

// All returns every configured device in configuration order.
func (r *Registry) All() []DeviceConfig {
	out := make([]DeviceConfig, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of configured devices.
func (r *Registry) Len() int {
	return r.devices.Len()
}

// NormalizeAddress converts any accepted MAC notation to the canonical
// upper-case colon-separated 6-byte form.
func NormalizeAddress(address string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("invalid hardware address %q: %w", address, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid hardware address %q: expected 6 bytes, got %d", address, len(hw))
	}
	return strings.ToUpper(hw.String()), nil
}
