package mqtt

import (
	"errors"
	"strings"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAuthRejected is returned when the broker refuses the credentials.
	// This is fatal: retrying with the same credentials cannot succeed.
	ErrAuthRejected = errors.New("mqtt: authentication rejected")

	// ErrNotConnected is returned when attempting operations on a disconnected session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed is returned when a publish operation fails or times out.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)

// isAuthError recognizes broker auth rejections in paho's error strings.
// paho surfaces CONNACK refusals as plain errors, so string matching is the
// only stable classification point.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bad user name or password") ||
		strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "not authorised")
}

// IsFatal reports whether a connection error cannot be recovered by retrying.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}
