// Package mqtt connects upsd to an MQTT broker.
//
// upsd mirrors every device variable to a retained topic, publishes a
// per-device status summary and the raw event stream, and (optionally)
// accepts instant commands and variable writes on a command topic. See
// Topics for the hierarchy.
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - The command topic bypasses API users; restrict it with broker ACLs
//     or leave mqtt.commands_enabled off
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	client.PublishRetained(topics.Variable("ups1", "battery.charge"), []byte("100"))
package mqtt
