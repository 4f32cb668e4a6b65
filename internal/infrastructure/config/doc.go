// Package config loads and validates device service configuration.
//
// Configuration is resolved in three layers:
//   - built-in defaults matching the deployed service
//   - an optional YAML file
//   - DEVICE_SERVICE_* environment variables (plus SHOULD_LOG_CHANGES)
//
// Durations in YAML use Go syntax ("200ms", "5s"). Environment variables
// also accept plain seconds ("0.2").
//
// Secrets (MQTT password, InfluxDB token, JWT secret) should be supplied
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Monitor.PollInterval)
package config
