package influxdb

import "errors"

// Sentinel errors. Telemetry is best effort, so most callers only log these.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed ping or an unhealthy server at connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is reported by HealthCheck on a closed or nil client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps errors delivered to the SetOnError callback.
	// Writes are batched, so these arrive asynchronously.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
