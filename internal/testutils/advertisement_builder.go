// Package testutils provides builders and helpers shared by the bridge's
// test suites.
package testutils

import (
	"time"

	"github.com/srg/blemon/internal/device"
)

// AdvertisementBuilder builds device.Advertisement values for testing.
// It provides a fluent API so tests state only the fields they care about.
type AdvertisementBuilder struct {
	adv device.Advertisement
}

// NewAdvertisementBuilder creates a builder with an observation time of now.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: device.Advertisement{ObservedAt: time.Now()},
	}
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.RSSI = rssi
	return b
}

// WithManufacturerData sets manufacturer data with a company identifier
// prefix (little-endian) followed by the payload, the way adapters see it on
// the wire.
func (b *AdvertisementBuilder) WithManufacturerData(companyID uint16, payload []byte) *AdvertisementBuilder {
	data := make([]byte, 0, 2+len(payload))
	data = append(data, byte(companyID), byte(companyID>>8))
	data = append(data, payload...)
	b.adv.ManufacturerData = data
	return b
}

// WithRawManufacturerData sets the manufacturer data block verbatim, for
// malformed-payload cases.
func (b *AdvertisementBuilder) WithRawManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufacturerData = data
	return b
}

// WithServiceData adds one service data entry.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	if b.adv.ServiceData == nil {
		b.adv.ServiceData = make(map[string][]byte)
	}
	b.adv.ServiceData[uuid] = data
	return b
}

// WithObservedAt sets the observation timestamp.
func (b *AdvertisementBuilder) WithObservedAt(t time.Time) *AdvertisementBuilder {
	b.adv.ObservedAt = t
	return b
}

// Build returns the constructed advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	return b.adv
}
