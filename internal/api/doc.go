// Package api implements the HTTP API and WebSocket stream of the device
// service.
//
// This package provides:
//   - Proxy status queries served from the status cache
//   - CRUD for device configuration records (DeviceServiceConfig)
//   - Operator commands (Start, Stop, Pause, Resume) published on the bus
//   - Monitor control (snapshot reload, loop statistics)
//   - WebSocket status stream: bus events per channel, plus a snapshot of
//     the status cache on subscribe to proxy.status
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API never writes the status cache; the monitor is its only writer.
// Configuration changes are persisted immediately but reach the monitor
// only after POST /monitor/reload.
//
// # Security
//
// When security.jwt.secret is set, mutating routes require an HS256 bearer
// token. With an empty secret auth is disabled.
//
// # Graceful Degradation
//
// The server operates without MQTT. Reads and WebSocket connections work;
// operator commands report that nothing was published.
package api
