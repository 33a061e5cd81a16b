// Package broker runs an optional embedded MQTT broker.
//
// Enable it with mqtt.embedded.enabled when no external broker is available;
// point Domoticz's "MQTT Client Gateway" hardware at the same listen address.
package broker
