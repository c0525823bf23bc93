package goble

import (
	"github.com/srg/blemon/internal/device"
)

// NormalizeError maps go-ble error strings onto the structured adapter error
// kinds defined by the device package. Kept as a package-level indirection so
// go-ble specific quirks can be matched here without leaking into callers.
func NormalizeError(err error) error {
	return device.NormalizeError(err)
}
