package goble

import (
	"context"
	"time"

	ble "github.com/go-ble/ble"

	"github.com/srg/blemon/internal/device"
)

// bleScanner wraps ble.Device to implement the device.Scanner interface
type bleScanner struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to
// device.Advertisement. Duplicate advertisements are always allowed: the
// tracker relies on repeated sightings to refresh presence.
func (s *bleScanner) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(convertAdvertisement(adv))
	}
	err := s.dev.Scan(ctx, true, bleHandler)
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Stop releases the underlying adapter handle.
func (s *bleScanner) Stop() error {
	if err := s.dev.Stop(); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// NewScanner creates a device.Scanner instance for BLE scanning operations.
func NewScanner() (device.Scanner, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleScanner{dev: dev}, nil
}

// convertAdvertisement copies the fields the bridge cares about out of a
// ble.Advertisement. The copy matters: go-ble may reuse the underlying
// buffers after the handler returns.
func convertAdvertisement(adv ble.Advertisement) device.Advertisement {
	out := device.Advertisement{
		Address:    adv.Addr().String(),
		RSSI:       adv.RSSI(),
		ObservedAt: time.Now(),
	}

	if md := adv.ManufacturerData(); len(md) > 0 {
		out.ManufacturerData = append([]byte(nil), md...)
	}

	if sd := adv.ServiceData(); len(sd) > 0 {
		out.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			out.ServiceData[d.UUID.String()] = append([]byte(nil), d.Data...)
		}
	}

	return out
}
