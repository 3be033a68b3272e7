package mqtt

import "strings"

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "upswatch"

// Topics builds the upswatch topic hierarchy under a prefix:
//
//	{prefix}/system/status              online/offline (retained, LWT)
//	{prefix}/state/{device}/{variable}  variable value (retained)
//	{prefix}/status/{device}            connected/stale summary (retained)
//	{prefix}/event/{device}             every daemon event as JSON
//	{prefix}/command/{device}           inbound INSTCMD / SET requests
type Topics struct {
	prefix string
}

// NewTopics returns builders for prefix, or DefaultTopicPrefix if empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the hierarchy.
func (t Topics) Prefix() string { return t.prefix }

// SystemStatus is where upsd announces itself.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// Variable is the retained value topic for one device variable.
//
// Example: upswatch/state/ups1/battery.charge
func (t Topics) Variable(device, name string) string {
	return t.prefix + "/state/" + device + "/" + name
}

// DeviceStatus is the retained availability summary for a device.
func (t Topics) DeviceStatus(device string) string {
	return t.prefix + "/status/" + device
}

// DeviceEvent carries the raw event stream for a device.
func (t Topics) DeviceEvent(device string) string {
	return t.prefix + "/event/" + device
}

// DeviceCommand is where clients ask upsd to act on a device.
func (t Topics) DeviceCommand(device string) string {
	return t.prefix + "/command/" + device
}

// AllDeviceCommands matches DeviceCommand for every device.
func (t Topics) AllDeviceCommands() string {
	return t.prefix + "/command/+"
}

// CommandDevice extracts the device from a DeviceCommand topic.
func (t Topics) CommandDevice(topic string) (string, bool) {
	device, ok := strings.CutPrefix(topic, t.prefix+"/command/")
	if !ok || device == "" || strings.Contains(device, "/") {
		return "", false
	}
	return device, true
}
