// Package mqtt provides MQTT client connectivity for the LED controller
// service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament on the service status topic
//   - The topic tree for lights, health, and Home Assistant discovery
//
// # Topic tree
//
//	{prefix}/status                     online | offline (retained, LWT)
//	{prefix}/health                     bridge health JSON (retained)
//	{prefix}/light/{id}/set             commands in
//	{prefix}/light/{id}/state           light state JSON (retained)
//	{prefix}/light/{id}/availability    online | offline (retained)
//	{discovery}/light/{id}/config       discovery config (retained)
//
// {id} is the light's unique id made topic-safe by TopicID.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	t := client.Topics()
//	err = client.Subscribe(t.AllLightCommands(), 1, handleCommand)
package mqtt
