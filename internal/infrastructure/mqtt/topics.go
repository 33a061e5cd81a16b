package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "fritzpresence"

// Topics builds the MQTT topics used by Fritz!Presence.
//
// Two families exist: the Domoticz gateway topics (fixed names chosen by
// Domoticz, usually domoticz/in and domoticz/out) and this service's own
// topics under a configurable prefix.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	topics.DeviceState("AA:BB:CC:DD:EE:FF")
//	// Returns: "fritzpresence/device/aabbccddeeff/state"
type Topics struct {
	prefix      string
	domoticzIn  string
	domoticzOut string
}

// NewTopics returns a topic builder for the configured names.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	prefix := strings.TrimSuffix(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		prefix:      prefix,
		domoticzIn:  cfg.DomoticzIn,
		domoticzOut: cfg.DomoticzOut,
	}
}

// DomoticzIn is where device updates for Domoticz are published.
func (t Topics) DomoticzIn() string {
	return t.domoticzIn
}

// DomoticzOut is where Domoticz announces device changes, including
// switch commands issued by users.
func (t Topics) DomoticzOut() string {
	return t.domoticzOut
}

// Status returns the retained service status topic (online/offline, LWT).
//
// Example: fritzpresence/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// DeviceState returns the retained presence state topic for a MAC address.
//
// Example: fritzpresence/device/aabbccddeeff/state
func (t Topics) DeviceState(mac string) string {
	return fmt.Sprintf("%s/device/%s/state", t.prefix, topicMAC(mac))
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: fritzpresence/device/+/state
func (t Topics) AllDeviceStates() string {
	return t.prefix + "/device/+/state"
}

// Event returns the topic for service events such as "presence_changed".
//
// Example: fritzpresence/event/presence_changed
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix, eventType)
}

// topicMAC strips separators so the address forms a single topic level.
func topicMAC(mac string) string {
	r := strings.NewReplacer(":", "", "-", "")
	return strings.ToLower(r.Replace(mac))
}
