// Package influxdb records light telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - light_state: every observed state (on, brightness, available, update_failed)
//   - light_command: every turn_on / turn_off outcome with its duration
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // writes become no-ops
//	}
//	defer client.Close()
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write failures reach the SetOnError callback. Connection and health check
// errors are returned directly.
package influxdb
