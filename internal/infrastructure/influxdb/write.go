package influxdb

import (
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementCycle is the measurement written once per monitor cycle.
const MeasurementCycle = "device_monitor_cycle"

const serviceTag = "device-service"

// WriteCycle records one monitor cycle: its duration, the number of
// devices visited and how many ended in each classification. The write is
// non-blocking.
func (c *Client) WriteCycle(at time.Time, duration time.Duration, devices int, counts map[string]int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(CyclePoint(at, duration, devices, counts))
}

// CyclePoint builds the point WriteCycle sends. Classification counts are
// written as fields named count_<classification>.
func CyclePoint(at time.Time, duration time.Duration, devices int, counts map[string]int) *write.Point {
	fields := map[string]interface{}{
		"duration_ms": float64(duration.Microseconds()) / 1000,
		"devices":     devices,
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields["count_"+k] = counts[k]
	}

	return write.NewPoint(
		MeasurementCycle,
		map[string]string{"service": serviceTag},
		fields,
		at,
	)
}
