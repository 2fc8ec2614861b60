package mqtt

import "errors"

// Sentinel errors. Wrapped errors keep these as their root, so callers
// check with errors.Is.
var (
	// ErrNotConnected means the broker connection is down. Paho keeps
	// reconnecting in the background; the caller decides whether to retry.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the cause of a failed first connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrPayloadTooLarge rejects payloads above the broker-safe limit
	// before they reach the network.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
