package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidCommand is returned when a command payload does not decode
	// or carries out-of-range values.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrUnknownLight is returned when a command topic names no loaded light.
	ErrUnknownLight = errors.New("bridge: unknown light")

	// ErrInvalidTopic is returned when a message arrives on a topic outside
	// the light command tree.
	ErrInvalidTopic = errors.New("bridge: invalid topic")

	// ErrCommandQueueFull is returned when a light already has the maximum
	// number of commands waiting.
	ErrCommandQueueFull = errors.New("bridge: command queue full")

	// ErrStopped is returned for commands arriving after Stop.
	ErrStopped = errors.New("bridge: stopped")
)
