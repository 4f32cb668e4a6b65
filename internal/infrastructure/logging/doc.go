// Package logging provides structured logging for the device service.
//
// It wraps log/slog with a JSON (default) or text handler and stamps every
// record with service and version fields.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("monitor started", "devices", n)
//
// Never log MQTT passwords, tokens or JWT secrets.
package logging
