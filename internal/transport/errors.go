package transport

import "errors"

// Errors returned by transport operations.
var (
	// ErrNoData is returned when a file does not exist yet.
	ErrNoData = errors.New("no data yet")

	// ErrUnrecognized is returned when a file exists but does not carry a
	// preload wrapper. Writers may be mid-write, so callers usually retry.
	ErrUnrecognized = errors.New("unrecognized file wrapper")

	// ErrMalformedRecord is returned when a halt record cannot be split
	// into key/value pairs.
	ErrMalformedRecord = errors.New("malformed halt record")
)
