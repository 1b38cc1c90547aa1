// Package mqtt provides MQTT client connectivity for knxlink.
//
// A link publishes everything it receives from the KNX gateway and takes
// send commands from the broker:
//
//	KNXnet/IP gateway ↔ knxlink ↔ MQTT broker ↔ home automation
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Subscriptions restored after reconnect
//   - Last Will and Testament on knxlink/{link_id}/status
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) whenever the broker is not on localhost
//   - Pass credentials via KNXLINK_MQTT_USERNAME / KNXLINK_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Link.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Command(cfg.Link.ID), 1, handleCommand)
package mqtt
