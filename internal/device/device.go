package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Advertisement is a single BLE advertisement sighting. Values are produced by
// the scan adapter and consumed exactly once by the tracker; they carry no
// references to adapter internals.
type Advertisement struct {
	Address          string
	RSSI             int
	ManufacturerData []byte
	ServiceData      map[string][]byte
	ObservedAt       time.Time
}

// CompanyID extracts the Bluetooth SIG company identifier from the
// manufacturer data block (first two bytes, little-endian). Returns false
// when the block is too short to carry one.
func (a Advertisement) CompanyID() (uint16, bool) {
	if len(a.ManufacturerData) < 2 {
		return 0, false
	}
	return uint16(a.ManufacturerData[0]) | uint16(a.ManufacturerData[1])<<8, true
}

// ManufacturerPayload returns the manufacturer data with the company
// identifier prefix stripped, or nil if the block is missing or short.
func (a Advertisement) ManufacturerPayload() []byte {
	if len(a.ManufacturerData) < 2 {
		return nil
	}
	return a.ManufacturerData[2:]
}

// Scanner is a BLE adapter capable of continuous advertisement scanning.
//
// Scan blocks while the adapter is healthy, invoking handler for each
// advertisement. It returns when ctx is cancelled or the adapter faults;
// a non-nil error means the stream ended abnormally and the adapter must be
// re-acquired before scanning again. Stop releases adapter resources and is
// safe to call after Scan has returned.
type Scanner interface {
	Scan(ctx context.Context, handler func(Advertisement)) error
	Stop() error
}

// AdapterErrorKind classifies adapter-level failures.
type AdapterErrorKind string

const (
	AdapterMissing   AdapterErrorKind = "adapter_missing"
	PermissionDenied AdapterErrorKind = "permission_denied"
	PoweredOff       AdapterErrorKind = "powered_off"
	DriverFault      AdapterErrorKind = "driver_fault"
)

// AdapterError represents any adapter-level problem
type AdapterError struct {
	Kind AdapterErrorKind
	Msg  string
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare AdapterError values by Kind
func (e *AdapterError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AdapterError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for adapter failure kinds
var (
	ErrAdapterMissing   = &AdapterError{Kind: AdapterMissing}
	ErrPermissionDenied = &AdapterError{Kind: PermissionDenied}
	ErrPoweredOff       = &AdapterError{Kind: PoweredOff}
	ErrDriverFault      = &AdapterError{Kind: DriverFault}
)

// NormalizeError maps known go-ble error strings to structured AdapterError
// kinds. It ensures consistent handling even if the upstream library changes
// messages slightly. Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "can't find device"),
		containsIgnoreCase(msg, "no default device"):
		return fmt.Errorf("%w: %v", ErrAdapterMissing, err)
	case containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "permission denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "is bluetooth turned on"),
		containsIgnoreCase(msg, "network is down"),
		containsIgnoreCase(msg, "device is down"):
		return fmt.Errorf("%w: %v", ErrPoweredOff, err)
	case containsIgnoreCase(msg, "input/output error"),
		containsIgnoreCase(msg, "connection timed out"),
		containsIgnoreCase(msg, "hci"):
		return fmt.Errorf("%w: %v", ErrDriverFault, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsAdapterKind reports whether err is an AdapterError with the given kind
func IsAdapterKind(err error, kind AdapterErrorKind) bool {
	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr.Kind == kind
	}
	return false
}

// IsFatal reports whether an adapter failure cannot be recovered by
// re-initializing the adapter. Permission problems and a missing adapter
// stay broken no matter how often the scan loop retries.
func IsFatal(err error) bool {
	return IsAdapterKind(err, PermissionDenied) || IsAdapterKind(err, AdapterMissing)
}
