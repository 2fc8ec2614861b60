package ledcontroller

import (
	"errors"
	"fmt"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// Kind classifies a failure so callers can pick a retry policy without
// inspecting driver errors.
type Kind int

const (
	// KindNotReady means the handler could not be connected. Retryable by the host.
	KindNotReady Kind = iota + 1

	// KindLookup means no handler exists for the endpoint. A setup ordering
	// bug, not retried.
	KindLookup

	// KindCommand means a brightness write failed.
	KindCommand

	// KindUpdate means a brightness read failed at the transport or protocol layer.
	KindUpdate

	// KindNoData means the device has not answered with usable data yet.
	KindNoData
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotReady:
		return "not_ready"
	case KindLookup:
		return "lookup"
	case KindCommand:
		return "command"
	case KindUpdate:
		return "update"
	case KindNoData:
		return "no_data"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Package sentinels, wrapped inside *Error.
var (
	// ErrHandlerNotFound is the cause of a KindLookup error.
	ErrHandlerNotFound = errors.New("ledcontroller: handler not found")

	// ErrNotConnected is the cause of a KindNotReady error when Connect
	// returned without error but the handler is still disconnected.
	ErrNotConnected = errors.New("ledcontroller: couldn't connect to LED controller")

	// ErrRegistryClosed is returned by ResolveOrCreate after Close.
	ErrRegistryClosed = errors.New("ledcontroller: registry closed")

	// ErrUnknownType is returned when constructing a controller for an
	// unsupported family.
	ErrUnknownType = errors.New("ledcontroller: unknown controller type")

	// ErrControllerExists is returned when a Manager already holds the id.
	ErrControllerExists = errors.New("ledcontroller: controller already registered")
)

// Error is the error type returned by this package.
type Error struct {
	Kind     Kind
	Op       string
	Endpoint driver.Endpoint
	Err      error
}

// Error implements error.
//
// Example: "connect tcp://10.0.0.5:4010: ledcontroller: couldn't connect to LED controller"
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
