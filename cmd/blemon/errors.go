package main

import (
	"errors"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/mqtt"
)

// FormatUserError turns known fatal error classes into operator-friendly
// messages. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case device.IsAdapterKind(err, device.PermissionDenied):
		return "Bluetooth permission denied - try running with elevated privileges or grant the binary CAP_NET_ADMIN"
	case device.IsAdapterKind(err, device.AdapterMissing):
		return "no usable Bluetooth adapter found - check that the adapter is attached and enabled"
	case errors.Is(err, mqtt.ErrAuthRejected):
		return "MQTT broker rejected the configured credentials - check mqtt.username and mqtt.password"
	case errors.Is(err, mqtt.ErrConnectionFailed):
		return err.Error() + " - check mqtt.host and mqtt.port"
	default:
		return err.Error()
	}
}
