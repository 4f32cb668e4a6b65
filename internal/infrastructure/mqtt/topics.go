package mqtt

import "strings"

// TopicPrefixSystem is the base for service lifecycle topics.
const TopicPrefixSystem = "mcs/system"

// Topics provides builders for transport-level topics. Domain event topics
// live with the event publisher.
type Topics struct{}

// SystemStatus returns the retained online/offline topic of this service.
//
// Example: mcs/system/DeviceService/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/DeviceService/status"
}

// validateTopic checks a publish topic: non-empty, no wildcards.
func validateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}

// validateFilter checks a subscription filter. "+" must fill a whole level
// and "#" must be the whole last level.
func validateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return ErrInvalidTopic
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return ErrInvalidTopic
		}
	}
	return nil
}
