package events

import (
	"strconv"
	"strings"
)

// Topic roots.
const (
	TopicProxyStatus  = "mcs/events/ProxyService/status"
	TopicDeviceStatus = "mcs/events/DeviceService/status"
	TopicService      = "mcs/events/deviceService"
)

// Service event actions.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// Topics builds event topic names.
type Topics struct{}

// ProxyStatus returns the aggregate proxy status topic.
func (Topics) ProxyStatus() string { return TopicProxyStatus }

// ProxyStatusFor returns the per-device proxy status topic.
func (Topics) ProxyStatusFor(id int64) string {
	return TopicProxyStatus + "/" + strconv.FormatInt(id, 10)
}

// DeviceStatusFor returns the per-device status record topic.
func (Topics) DeviceStatusFor(id int64) string {
	return TopicDeviceStatus + "/" + strconv.FormatInt(id, 10)
}

// Service returns the fleet event topic for action.
func (Topics) Service(action string) string {
	return TopicService + "/" + action
}

// AllProxyStatus matches every per-device proxy status topic.
func (Topics) AllProxyStatus() string { return TopicProxyStatus + "/+" }

// AllDeviceStatus matches every per-device status record topic.
func (Topics) AllDeviceStatus() string { return TopicDeviceStatus + "/+" }

// AllService matches every fleet event topic.
func (Topics) AllService() string { return TopicService + "/+" }

// Match reports whether topic matches an MQTT subscription filter.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// lastLevel returns the final level of a topic.
func lastLevel(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
