// Package mqtt provides the MQTT client used to talk to Domoticz.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing device updates to the Domoticz "in" topic
//   - Subscribing to the Domoticz "out" topic for switch commands
//   - A retained status topic with Last Will and Testament
//
// # Topics
//
//	domoticz/in                              device updates for Domoticz
//	domoticz/out                             changes made inside Domoticz
//	fritzpresence/status                     online / offline (retained, LWT)
//	fritzpresence/device/<mac>/state         presence per device (retained)
//	fritzpresence/event/presence_changed     presence transitions
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().DomoticzIn(), msg, false)
package mqtt
