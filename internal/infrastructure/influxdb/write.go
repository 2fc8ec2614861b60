package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLightState   = "light_state"
	MeasurementLightCommand = "light_command"
)

// LightSample is one observation of a light, written to MeasurementLightState.
// Nil IsOn or Brightness means the controller has not reported yet; the
// field is omitted from the point.
type LightSample struct {
	UniqueID     string
	EntryID      string
	Domain       string
	IsOn         *bool
	Brightness   *uint8
	Available    bool
	UpdateFailed bool
	Time         time.Time
}

// WriteLightState records a light observation.
//
// Example:
//
//	client.WriteLightState(influxdb.LightSample{UniqueID: uid, Brightness: &b, Available: true})
func (c *Client) WriteLightState(s LightSample) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"available":     s.Available,
		"update_failed": s.UpdateFailed,
	}
	if s.IsOn != nil {
		fields["on"] = *s.IsOn
	}
	if s.Brightness != nil {
		fields["brightness"] = int64(*s.Brightness)
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementLightState,
		tags("unique_id", s.UniqueID, "entry_id", s.EntryID, "domain", s.Domain),
		fields,
		ts,
	))
}

// tags builds a tag set from key/value pairs, dropping empty values.
func tags(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

// WriteLightCommand records the outcome of a turn_on / turn_off.
//
// Parameters:
//   - uniqueID: Light unique id
//   - action: "turn_on" or "turn_off"
//   - duration: Time from write to completed read-back
//   - err: Command error, nil on success
func (c *Client) WriteLightCommand(uniqueID, action string, duration time.Duration, err error) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"success":     err == nil,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementLightCommand,
		tags("unique_id", uniqueID, "action", action),
		fields,
		time.Now(),
	))
}
