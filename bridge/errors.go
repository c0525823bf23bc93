package bridge

import "errors"

// Option validation errors
var (
	errNoRegistry  = errors.New("bridge: registry is required")
	errNoScanner   = errors.New("bridge: scanner factory is required")
	errNoPublisher = errors.New("bridge: publisher is required")
)
