// Package api implements the HTTP REST API and WebSocket server for the LED
// controller service.
//
// This package provides:
//   - Config entry endpoints: list, create through the config flow, reload, remove
//   - Light endpoints: snapshots, turn_on / turn_off, refresh, state history
//   - Controller connection statistics and the activity log
//   - WebSocket hub relaying host events in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits beside the MQTT bridge in front of the platform host.
// Both drive the same lights; every change, whichever surface caused it, is
// emitted by the host and relayed to WebSocket clients subscribed to the
// event's type (e.g. "light.state_changed"). A client may narrow light
// events to some unique ids; subscribing to state changes replies with a
// snapshot of the followed lights.
//
// # Errors
//
// Errors use one JSON shape:
//
//	{"status": 400, "code": "validation_error", "message": "...", "fields": {"host": "required"}}
//
// A failed controller write is reported as 502 with code "controller_error".
package api
