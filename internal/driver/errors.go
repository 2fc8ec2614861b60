package driver

import "errors"

// Domain errors for the driver package.
var (
	// ErrInvalidEndpoint is returned for an empty host or a port outside 1..65535.
	ErrInvalidEndpoint = errors.New("driver: invalid endpoint")

	// ErrConnectionFailed is returned when dialing the controller fails.
	ErrConnectionFailed = errors.New("driver: connection failed")

	// ErrNotConnected is returned when an exchange is attempted without a
	// connection and the single re-dial also failed.
	ErrNotConnected = errors.New("driver: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("driver: handler closed")

	// ErrInvalidValue is returned for a brightness outside the unit's range.
	ErrInvalidValue = errors.New("driver: value out of range")

	// ErrCommandRejected is returned when the controller answers a write with ERR.
	ErrCommandRejected = errors.New("driver: command rejected by controller")

	// ErrIO is returned when the request or response could not be transferred.
	ErrIO = errors.New("driver: i/o failed")

	// ErrNoData is returned when the controller has not produced a reading yet.
	ErrNoData = errors.New("driver: no data received")

	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("driver: malformed response")
)
