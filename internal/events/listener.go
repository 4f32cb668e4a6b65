package events

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Subscriber is the inbound side of the bus. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(filter string, qos byte, handler func(topic string, payload []byte) error) error
}

// Relay receives decoded events, for example the WebSocket hub.
type Relay interface {
	Broadcast(channel string, payload any)
}

// Relay channels.
const (
	ChannelProxyStatus  = "proxy.status"
	ChannelDeviceStatus = "device.status"
	ChannelServiceEvent = "service.event"
)

// ServiceEvent is what the relay receives for a fleet event.
type ServiceEvent struct {
	Action  string  `json:"action"`
	Payload Payload `json:"payload"`
}

// ListenerStats counts handled messages by family.
type ListenerStats struct {
	ProxyStatus  uint64 `json:"proxy_status"`
	DeviceStatus uint64 `json:"device_status"`
	Service      uint64 `json:"service"`
	Invalid      uint64 `json:"invalid"`
}

// Listener subscribes to the event families and routes messages by topic.
type Listener struct {
	sub    Subscriber
	qos    byte
	relay  Relay
	topics Topics
	logger Logger

	proxyCount   atomic.Uint64
	deviceCount  atomic.Uint64
	serviceCount atomic.Uint64
	invalidCount atomic.Uint64
}

// NewListener creates a listener. relay may be nil.
func NewListener(sub Subscriber, qos byte, relay Relay) *Listener {
	return &Listener{
		sub:    sub,
		qos:    qos,
		relay:  relay,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Filters returns the subscription filters in subscription order.
func (l *Listener) Filters() []string {
	return []string{l.topics.AllProxyStatus(), l.topics.AllDeviceStatus(), l.topics.AllService()}
}

// Start subscribes to every event family.
func (l *Listener) Start() error {
	for _, filter := range l.Filters() {
		if err := l.sub.Subscribe(filter, l.qos, l.Handle); err != nil {
			return fmt.Errorf("subscribing to %s: %w", filter, err)
		}
		l.logger.Info("subscribed to event topic", "filter", filter)
	}
	return nil
}

// Handle decodes and routes one message. It runs on the bus worker pool.
func (l *Listener) Handle(topic string, data []byte) error {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		l.invalidCount.Add(1)
		return fmt.Errorf("decoding event on %s: %w", topic, err)
	}

	switch {
	case Match(l.topics.AllProxyStatus(), topic):
		l.proxyCount.Add(1)
		l.logger.Debug("proxy status event", "topic", topic, "id", p.ID, "status", p.Status, "message", p.Message)
		l.broadcast(ChannelProxyStatus, p)
	case Match(l.topics.AllDeviceStatus(), topic):
		l.deviceCount.Add(1)
		l.logger.Debug("device status event", "topic", topic, "id", p.ID, "status", p.Status)
		l.broadcast(ChannelDeviceStatus, p)
	case Match(l.topics.AllService(), topic):
		l.serviceCount.Add(1)
		l.handleServiceEvent(lastLevel(topic), p)
	default:
		l.invalidCount.Add(1)
		l.logger.Warn("event on unrecognised topic", "topic", topic)
	}
	return nil
}

func (l *Listener) handleServiceEvent(action string, p Payload) {
	switch action {
	case ActionStart:
		l.logger.Info("device service start event", "id", p.ID, "status", p.Status)
	case ActionStop:
		l.logger.Info("device service stop event", "id", p.ID, "status", p.Status)
	default:
		l.logger.Debug("device service event", "action", action, "id", p.ID, "status", p.Status)
	}
	l.broadcast(ChannelServiceEvent, ServiceEvent{Action: action, Payload: p})
}

func (l *Listener) broadcast(channel string, payload any) {
	if l.relay != nil {
		l.relay.Broadcast(channel, payload)
	}
}

// Stats returns message counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		ProxyStatus:  l.proxyCount.Load(),
		DeviceStatus: l.deviceCount.Load(),
		Service:      l.serviceCount.Load(),
		Invalid:      l.invalidCount.Load(),
	}
}
