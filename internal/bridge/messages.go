package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// JSON schema state values.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// CommandMessage is received on a light's command topic.
// Topic: ledcontroller/light/{id}/set
//
// It follows the Home Assistant MQTT light JSON schema:
//
//	{"state": "ON", "brightness": 128}
//	{"state": "OFF"}
type CommandMessage struct {
	// State is "ON" or "OFF".
	State string `json:"state"`

	// Brightness is 0..255. Only meaningful with state ON.
	Brightness *int `json:"brightness,omitempty"`
}

// ParseCommand decodes and validates a command payload.
func ParseCommand(payload []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	msg.State = strings.ToUpper(strings.TrimSpace(msg.State))
	switch msg.State {
	case StateOn, StateOff:
	case "":
		// A bare brightness means "on at this level".
		if msg.Brightness == nil {
			return msg, fmt.Errorf("%w: state is required", ErrInvalidCommand)
		}
		msg.State = StateOn
	default:
		return msg, fmt.Errorf("%w: unknown state %q", ErrInvalidCommand, msg.State)
	}

	if msg.Brightness != nil && (*msg.Brightness < 0 || *msg.Brightness > 255) {
		return msg, fmt.Errorf("%w: brightness %d out of range 0..255", ErrInvalidCommand, *msg.Brightness)
	}
	return msg, nil
}

// StateMessage is published, retained, on a light's state topic.
// Topic: ledcontroller/light/{id}/state
//
// State and Brightness are null while the controller has not reported.
type StateMessage struct {
	State        *string   `json:"state"`
	Brightness   *uint8    `json:"brightness"`
	UpdateFailed bool      `json:"update_failed"`
	LastError    string    `json:"last_error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewStateMessage builds a state message from a snapshot.
func NewStateMessage(s platform.LightState) StateMessage {
	msg := StateMessage{
		Brightness:   s.Brightness,
		UpdateFailed: s.UpdateFailed,
		LastError:    s.LastError,
		Timestamp:    s.LastUpdated.UTC(),
	}
	if s.IsOn != nil {
		state := StateOff
		if *s.IsOn {
			state = StateOn
		}
		msg.State = &state
	}
	return msg
}

// DiscoveryDevice groups discovered lights under one device.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryAvailability is one availability topic in a discovery config.
type DiscoveryAvailability struct {
	Topic string `json:"topic"`
}

// DiscoveryConfig is the retained Home Assistant discovery payload for a light.
// Topic: homeassistant/light/{id}/config
type DiscoveryConfig struct {
	Name                string                  `json:"name"`
	UniqueID            string                  `json:"unique_id"`
	Schema              string                  `json:"schema"`
	CommandTopic        string                  `json:"command_topic"`
	StateTopic          string                  `json:"state_topic"`
	Availability        []DiscoveryAvailability `json:"availability"`
	AvailabilityMode    string                  `json:"availability_mode"`
	Brightness          bool                    `json:"brightness"`
	BrightnessScale     int                     `json:"brightness_scale"`
	SupportedColorModes []string                `json:"supported_color_modes"`
	Icon                string                  `json:"icon,omitempty"`
	Device              DiscoveryDevice         `json:"device"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy means MQTT is connected and every light is available.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means MQTT is down or some lights are unavailable.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting is published once during Start.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published once during Stop.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: ledcontroller/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Lights is the number of loaded lights; Available those with a reading.
	Lights    int `json:"lights"`
	Available int `json:"available"`

	// Handlers and Connected count controller connections.
	Handlers  int `json:"handlers"`
	Connected int `json:"connected"`

	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains command counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
}
