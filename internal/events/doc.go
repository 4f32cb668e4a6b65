// Package events publishes device health events to the bus and listens to
// the events other services publish.
//
// Publisher never fails loudly: a marshal error, a disconnected bus or a
// missing bus is logged and reported as false, and the caller carries on.
// Listener subscribes to the proxy, device and service event families and
// relays decoded payloads, typically to the WebSocket hub.
//
// # Topics
//
//	mcs/events/ProxyService/status          aggregate proxy status
//	mcs/events/ProxyService/status/{id}     per-device proxy status
//	mcs/events/DeviceService/status/{id}    per-device status record
//	mcs/events/deviceService/{action}       start, stop, pause, resume
package events
