package mqtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthError(t *testing.T) {
	assert.False(t, isAuthError(nil))
	assert.False(t, isAuthError(errors.New("network error: connection refused")))

	// CONNACK refusal strings as paho surfaces them, MQTT 3.1.1 and 5 spellings.
	assert.True(t, isAuthError(errors.New("bad user name or password")))
	assert.True(t, isAuthError(errors.New("Not Authorized")))
	assert.True(t, isAuthError(errors.New("not authorised")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrAuthRejected))
	assert.True(t, IsFatal(fmt.Errorf("%w: bad user name or password", ErrAuthRejected)))

	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrConnectionFailed))
	assert.False(t, IsFatal(ErrNotConnected))
	assert.False(t, IsFatal(ErrPublishFailed))
}
