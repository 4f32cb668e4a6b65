package monitor

import (
	"time"
)

// Classification is the outcome of evaluating one device.
type Classification string

// Classifications.
const (
	Healthy         Classification = "healthy"
	Unreachable     Classification = "unreachable"
	Timeout         Classification = "timeout"
	ConnectionError Classification = "connection_error"
	RemoteError     Classification = "remote_error"
	Disabled        Classification = "disabled"
	Remove          Classification = "remove"
)

// MessageDisabled is reported for disabled devices. It is never cached.
const MessageDisabled = "Device disabled"

// ProbeResult is the evaluation of one device in one cycle.
type ProbeResult struct {
	ID             int64          `json:"id"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
	Alive          bool           `json:"alive"`
	Started        bool           `json:"started"`
}

// CycleReport summarises one reconciliation cycle.
type CycleReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Devices   int
	Counts    map[Classification]int
	Results   []ProbeResult
	// Failed counts devices whose processing panicked.
	Failed int
	// Aborted is set when the context ended before every device was visited.
	Aborted bool
}

// countsByName converts the classification counts for telemetry.
func (r CycleReport) countsByName() map[string]int {
	out := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		out[string(k)] = v
	}
	return out
}

// Stats is a point-in-time view of the monitor.
type Stats struct {
	Running           bool      `json:"running"`
	Cycles            uint64    `json:"cycles"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	LastCycleDuration string    `json:"last_cycle_duration"`
	LastError         string    `json:"last_error,omitempty"`
	SnapshotLoaded    bool      `json:"snapshot_loaded"`
	Devices           int       `json:"devices"`
	StatusEntries     int       `json:"status_entries"`
	PollInterval      string    `json:"poll_interval"`
}
