package mqtt

import (
	"fmt"
	"strings"
)

// Default topic roots.
const (
	DefaultTopicPrefix     = "ledcontroller"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Payloads for the service status and per-light availability topics.
// Home Assistant matches these literally.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds MQTT topics for the LED controller service.
//
// Using these helpers keeps every publisher and subscriber on the same
// topic tree:
//
//	t := mqtt.NewTopics("ledcontroller", "homeassistant")
//	t.LightCommand("led_controller_light_3_10.0.0.5:4010")
//	// Returns: "ledcontroller/light/led_controller_light_3_10_0_0_5_4010/set"
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// NewTopics returns a topic builder. Empty arguments fall back to the defaults,
// except discovery which stays disabled when empty.
func NewTopics(prefix, discoveryPrefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Prefix:          strings.TrimSuffix(prefix, "/"),
		DiscoveryPrefix: strings.TrimSuffix(discoveryPrefix, "/"),
	}
}

// TopicID makes a unique id usable as a single MQTT topic level and as a
// Home Assistant discovery object id: every character outside
// [A-Za-z0-9_-] becomes '_'. The raw unique id still goes in the
// discovery payload.
func TopicID(uniqueID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, uniqueID)
}

// LightCommand returns the command topic for a light.
//
// Example: ledcontroller/light/{id}/set
func (t Topics) LightCommand(uniqueID string) string {
	return fmt.Sprintf("%s/light/%s/set", t.Prefix, TopicID(uniqueID))
}

// LightState returns the retained state topic for a light.
//
// Example: ledcontroller/light/{id}/state
func (t Topics) LightState(uniqueID string) string {
	return fmt.Sprintf("%s/light/%s/state", t.Prefix, TopicID(uniqueID))
}

// LightAvailability returns the retained availability topic for a light.
//
// Example: ledcontroller/light/{id}/availability
func (t Topics) LightAvailability(uniqueID string) string {
	return fmt.Sprintf("%s/light/%s/availability", t.Prefix, TopicID(uniqueID))
}

// AllLightCommands matches every light command topic.
//
// Pattern: ledcontroller/light/+/set
func (t Topics) AllLightCommands() string {
	return fmt.Sprintf("%s/light/+/set", t.Prefix)
}

// Health returns the bridge health topic.
//
// Example: ledcontroller/health
func (t Topics) Health() string {
	return t.Prefix + "/health"
}

// Status returns the service online/offline topic. It carries the LWT.
//
// Example: ledcontroller/status
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// LightDiscovery returns the Home Assistant discovery config topic for a
// light, or "" when discovery is disabled.
//
// Example: homeassistant/light/{id}/config
func (t Topics) LightDiscovery(uniqueID string) string {
	if t.DiscoveryPrefix == "" {
		return ""
	}
	return fmt.Sprintf("%s/light/%s/config", t.DiscoveryPrefix, TopicID(uniqueID))
}

// ParseLightTopic extracts the topic id and the trailing action from a light
// topic ("set", "state", "availability").
//
// Returns ok=false if the topic is not under {prefix}/light/.
func (t Topics) ParseLightTopic(topic string) (id, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/light/")
	if !found {
		return "", "", false
	}
	id, action, found = strings.Cut(rest, "/")
	if !found || id == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return id, action, true
}
