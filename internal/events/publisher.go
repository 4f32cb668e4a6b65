package events

import (
	"encoding/json"
	"time"
)

// Bus is the transport the publisher writes to. *mqtt.Client implements it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends device events to the bus, best effort.
type Publisher struct {
	bus    Bus
	qos    byte
	topics Topics
	logger Logger
	now    func() time.Time
}

// NewPublisher creates a publisher. bus may be nil, in which case every
// publish is dropped and reported as false. Pass an untyped nil, not a nil
// *mqtt.Client.
func NewPublisher(bus Bus, qos byte) *Publisher {
	return &Publisher{
		bus:    bus,
		qos:    qos,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Connected reports whether a bus is attached and currently connected.
func (p *Publisher) Connected() bool {
	return p.bus != nil && p.bus.IsConnected()
}

// Publish marshals payload as JSON and sends it on topic. A Payload
// without a timestamp is stamped with the current time. Failures are
// logged and reported as false; Publish never retries.
func (p *Publisher) Publish(topic string, payload any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event publish panic recovered", "topic", topic, "panic", r)
			ok = false
		}
	}()

	if p.bus == nil {
		p.logger.Debug("event dropped, no bus", "topic", topic)
		return false
	}

	switch v := payload.(type) {
	case Payload:
		if v.Timestamp.IsZero() {
			v.Timestamp = p.now()
		}
		payload = v
	case *Payload:
		if v != nil && v.Timestamp.IsZero() {
			stamped := *v
			stamped.Timestamp = p.now()
			payload = stamped
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event marshal failed", "topic", topic, "error", err)
		return false
	}

	if err := p.bus.Publish(topic, data, p.qos, false); err != nil {
		p.logger.Warn("event publish failed", "topic", topic, "error", err)
		return false
	}

	p.logger.Debug("event published", "topic", topic, "bytes", len(data))
	return true
}

// ProxyStatus publishes on the per-device proxy status topic.
func (p *Publisher) ProxyStatus(payload Payload) bool {
	return p.Publish(p.topics.ProxyStatusFor(payload.ID), payload)
}

// AggregateStatus publishes on the aggregate proxy status topic.
func (p *Publisher) AggregateStatus(payload Payload) bool {
	return p.Publish(p.topics.ProxyStatus(), payload)
}

// DeviceStatus publishes on the per-device status record topic.
func (p *Publisher) DeviceStatus(payload Payload) bool {
	return p.Publish(p.topics.DeviceStatusFor(payload.ID), payload)
}

// ServiceEvent publishes a fleet event such as start or stop.
func (p *Publisher) ServiceEvent(action string, payload Payload) bool {
	if payload.Status == "" {
		payload.Status = action
	}
	return p.Publish(p.topics.Service(action), payload)
}
