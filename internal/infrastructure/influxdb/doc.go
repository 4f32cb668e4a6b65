// Package influxdb records health monitor telemetry in InfluxDB v2.
//
// One point per monitor cycle is written to the device_monitor_cycle
// measurement with the cycle duration, the number of devices visited and a
// count per classification. Per-device history is not stored.
//
// The integration is optional. Connect returns ErrDisabled when
// influxdb.enabled is false and the caller runs without telemetry.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb
