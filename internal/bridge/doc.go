// Package bridge exposes the host's lights over MQTT.
//
// Home Assistant (or any MQTT client) sees each light through the JSON
// schema of the MQTT light integration:
//
//	┌──────────────┐   MQTT    ┌──────────────┐  events  ┌──────────────┐
//	│ Home         │◄─────────►│   Bridge     │◄─────────│ platform     │
//	│ Assistant    │           │  (this pkg)  │─────────►│ Host         │
//	└──────────────┘           └──────────────┘ commands └──────────────┘
//
// # Topics
//
//	homeassistant/light/{id}/config       discovery, retained
//	ledcontroller/light/{id}/set          {"state":"ON","brightness":128}
//	ledcontroller/light/{id}/state        retained state, null until read
//	ledcontroller/light/{id}/availability online | offline, retained
//	ledcontroller/status                  service LWT
//	ledcontroller/health                  periodic health, retained
//
// {id} is the light's unique id with every character outside [A-Za-z0-9_-]
// replaced by '_' (see mqtt.TopicID), as Home Assistant requires for
// discovery object ids. The discovery payload keeps the raw unique id.
//
// # Ordering
//
// The subscription callback only validates a command and queues it on the
// light's worker, so a slow controller never stalls the MQTT client's
// delivery goroutine or its keepalive. Each light has one worker and the
// client delivers in order, so two commands for the same light take effect
// in the order they were published. Lights do not wait on each other. A
// light with too many commands waiting refuses new ones.
package bridge
