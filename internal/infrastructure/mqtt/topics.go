package mqtt

import "fmt"

// Topic roots.
const (
	// TopicPrefix is the root of every topic this service owns.
	TopicPrefix = "clagehs"

	// DefaultDiscoveryPrefix is Home Assistant's default discovery root.
	DefaultDiscoveryPrefix = "homeassistant"

	// DiscoveryNodePrefix prefixes device ids in discovery node ids so
	// several integrations can share one discovery root.
	DiscoveryNodePrefix = "clagehs_"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the topic names used by the service.
//
// The zero value uses DefaultDiscoveryPrefix:
//
//	topics := mqtt.Topics{}
//	topics.State("kitchen")                          // clagehs/state/kitchen
//	topics.Discovery("sensor", "kitchen", "heater_rssi")
//	// homeassistant/sensor/clagehs_kitchen/heater_rssi/config
type Topics struct {
	// DiscoveryPrefix overrides DefaultDiscoveryPrefix when set.
	DiscoveryPrefix string
}

// State returns the retained status topic of one device.
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Availability returns the retained online/offline topic of one device.
func (Topics) Availability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// SetTemperatureCommand returns the topic the service listens on for
// set_temperature requests.
func (Topics) SetTemperatureCommand() string {
	return TopicPrefix + "/command/set_temperature"
}

// CommandResult returns the topic a command outcome is published on.
func (Topics) CommandResult(commandID string) string {
	return fmt.Sprintf("%s/command/result/%s", TopicPrefix, commandID)
}

// SystemStatus returns the service status topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// SystemHealth returns the periodic health report topic.
func (Topics) SystemHealth() string {
	return TopicPrefix + "/system/health"
}

// Discovery returns the Home Assistant discovery config topic for one entity.
func (t Topics) Discovery(component, deviceID, objectID string) string {
	return fmt.Sprintf("%s/%s/%s%s/%s/config", t.discoveryPrefix(), component, DiscoveryNodePrefix, deviceID, objectID)
}

// AllStates matches the state topic of every device.
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+"
}

func (t Topics) discoveryPrefix() string {
	if t.DiscoveryPrefix == "" {
		return DefaultDiscoveryPrefix
	}
	return t.DiscoveryPrefix
}
