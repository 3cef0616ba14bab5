// Package mqtt connects the service to an MQTT broker.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect with backoff and subscription restore
//   - a retained status on clagehs/system/status, with an offline LWT
//   - publish/subscribe input validation and handler panic recovery
//   - Topics, the single place topic names are built
//
// The publish package uses it to announce Home Assistant discovery configs,
// retained device state and availability, and to receive set_temperature
// commands.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.PublishRetained(topics.State("kitchen"), payload)
package mqtt
