package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mcs-device-service/internal/controller"
	"github.com/nerrad567/mcs-device-service/internal/device"
	"github.com/nerrad567/mcs-device-service/internal/events"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
	"github.com/nerrad567/mcs-device-service/internal/status"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultErrorBackoff = time.Second
)

// DeviceLister loads the device configuration. device.SQLiteRepository
// implements it.
type DeviceLister interface {
	List(ctx context.Context) ([]device.Device, error)
}

// Controller calls the remote proxy. controller.Client implements it.
type Controller interface {
	ProbeLiveness(ctx context.Context, host string, port int) controller.Result
	RequestStart(ctx context.Context, d device.Device) controller.Result
}

// EventPublisher sends device events. events.Publisher implements it.
type EventPublisher interface {
	ProxyStatus(p events.Payload) bool
	AggregateStatus(p events.Payload) bool
	DeviceStatus(p events.Payload) bool
	ServiceEvent(action string, p events.Payload) bool
}

// CycleRecorder receives per-cycle telemetry. influxdb.Client implements it.
type CycleRecorder interface {
	WriteCycle(at time.Time, duration time.Duration, devices int, counts map[string]int)
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

// Deps holds the collaborators of a Monitor. Recorder is optional.
type Deps struct {
	Snapshot   *device.Snapshot
	Statuses   *status.Cache
	Devices    DeviceLister
	Controller Controller
	Events     EventPublisher
	Recorder   CycleRecorder
	Config     config.MonitorConfig
}

// Monitor drives the reconciliation loop.
type Monitor struct {
	snapshot   *device.Snapshot
	statuses   *status.Cache
	devices    DeviceLister
	controller Controller
	events     EventPublisher
	recorder   CycleRecorder

	pollInterval time.Duration
	errorBackoff time.Duration
	logChanges   bool
	logger       Logger

	// cycleMu serialises cycles and guards lastClass.
	cycleMu   sync.Mutex
	lastClass map[int64]Classification

	running atomic.Bool
	cycles  atomic.Uint64

	statsMu      sync.RWMutex
	lastCycleAt  time.Time
	lastDuration time.Duration
	lastError    string
}

// New creates a monitor. Snapshot, Statuses, Devices, Controller and Events
// are required.
func New(deps Deps) (*Monitor, error) {
	switch {
	case deps.Snapshot == nil:
		return nil, errors.New("monitor: snapshot is required")
	case deps.Statuses == nil:
		return nil, errors.New("monitor: status cache is required")
	case deps.Devices == nil:
		return nil, errors.New("monitor: device lister is required")
	case deps.Controller == nil:
		return nil, errors.New("monitor: controller is required")
	case deps.Events == nil:
		return nil, errors.New("monitor: event publisher is required")
	}

	m := &Monitor{
		snapshot:     deps.Snapshot,
		statuses:     deps.Statuses,
		devices:      deps.Devices,
		controller:   deps.Controller,
		events:       deps.Events,
		recorder:     deps.Recorder,
		pollInterval: deps.Config.PollInterval,
		errorBackoff: deps.Config.ErrorBackoff,
		logChanges:   deps.Config.LogChanges,
		logger:       noopLogger{},
		lastClass:    make(map[int64]Classification),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = defaultPollInterval
	}
	if m.errorBackoff <= 0 {
		m.errorBackoff = defaultErrorBackoff
	}
	return m, nil
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Run loops until ctx is cancelled: reload the snapshot when it is not
// loaded, run a cycle, sleep the poll interval. A failed load is logged
// and retried after the error backoff. Run returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor: already running")
	}
	defer m.running.Store(false)

	m.logger.Info("health monitor started", "poll_interval", m.pollInterval)
	defer m.logger.Info("health monitor stopped")

	for {
		wait := m.pollInterval
		if err := m.ensureLoaded(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.setLastError(err)
			m.logger.Error("monitor cycle failed", "error", err, "retry_in", m.errorBackoff)
			wait = m.errorBackoff
		} else {
			m.RunCycle(ctx)
		}

		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// ensureLoaded loads the snapshot from persistence if it is not loaded.
func (m *Monitor) ensureLoaded(ctx context.Context) error {
	if m.snapshot.Loaded() {
		return nil
	}
	devices, err := m.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	m.cycleMu.Lock()
	m.snapshot.Load(devices)
	m.lastClass = make(map[int64]Classification)
	m.cycleMu.Unlock()
	return nil
}

// ResetSnapshot marks the snapshot stale; Run reloads it before the next
// cycle.
func (m *Monitor) ResetSnapshot() {
	m.snapshot.Reset()
}

// RunCycle evaluates every device once, in ascending ID order. A panic
// while processing one device is logged, leaves its status unchanged and
// does not stop the cycle.
func (m *Monitor) RunCycle(ctx context.Context) CycleReport {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	report := CycleReport{
		StartedAt: time.Now(),
		Counts:    make(map[Classification]int),
	}

	for _, d := range m.snapshot.List() {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}
		res, ok := m.processSafely(ctx, d)
		if !ok {
			report.Failed++
			continue
		}
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}
		report.Devices++
		report.Counts[res.Classification]++
		report.Results = append(report.Results, res)
	}

	report.Duration = time.Since(report.StartedAt)
	m.cycles.Add(1)
	m.statsMu.Lock()
	m.lastCycleAt = report.StartedAt
	m.lastDuration = report.Duration
	m.lastError = ""
	m.statsMu.Unlock()

	if m.recorder != nil && !report.Aborted {
		m.recorder.WriteCycle(report.StartedAt, report.Duration, report.Devices, report.countsByName())
	}
	m.logger.Debug("monitor cycle complete",
		"devices", report.Devices,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report
}

func (m *Monitor) processSafely(ctx context.Context, d device.Device) (res ProbeResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("device processing panic recovered", "id", d.ID, "panic", r)
			ok = false
		}
	}()
	return m.process(ctx, d), true
}

// process evaluates one device, records and publishes the result.
func (m *Monitor) process(ctx context.Context, d device.Device) ProbeResult {
	res := m.Evaluate(ctx, d)
	if res.Classification == Disabled {
		return res
	}
	// A call cut short by shutdown says nothing about the device.
	if ctx.Err() != nil {
		return res
	}

	prev, next, cached := m.statuses.Upsert(d.ID, func(p status.DeviceStatus) status.DeviceStatus {
		p.Message = res.Message
		p.Alive = res.Alive
		p.Started = res.Started
		return p
	})
	if !cached {
		next = status.Fresh(d)
		next.Message, next.Alive, next.Started = res.Message, res.Alive, res.Started
		m.logger.Warn("no status entry for enabled device, reload the snapshot", "id", d.ID)
	}
	if m.logChanges && cached {
		m.logStatusChange(prev, next)
	}

	m.publish(res, prev, next, cached)
	return res
}

// Evaluate runs the probe and start calls for one device and classifies
// the outcome. It has no side effects beyond the network calls.
func (m *Monitor) Evaluate(ctx context.Context, d device.Device) ProbeResult {
	res := ProbeResult{ID: d.ID}
	if !d.Enabled {
		res.Classification = Disabled
		res.Message = MessageDisabled
		return res
	}

	probe := m.controller.ProbeLiveness(ctx, d.Host, d.Port)
	switch probe.Outcome {
	case controller.OutcomeOK:
	case controller.OutcomeTimeout:
		res.Classification, res.Message = Timeout, controller.MessageTimeout
		return res
	case controller.OutcomeConnectError:
		if probe.Preflight {
			res.Classification, res.Message = Unreachable, controller.MessagePortClosed
		} else {
			res.Classification, res.Message = ConnectionError, probe.Message
		}
		return res
	default:
		res.Classification, res.Message = RemoteError, probe.Message
		return res
	}

	start := m.controller.RequestStart(ctx, d)
	if start.Outcome != controller.OutcomeStarted {
		res.Classification, res.Message = Remove, start.Message
		m.logger.Warn("start request failed", "id", d.ID, "outcome", start.Outcome.String(), "message", start.Message)
		return res
	}

	res.Classification = Healthy
	res.Message = start.Message
	res.Alive = true
	res.Started = true
	return res
}

// publish applies the event policy for one evaluated device.
func (m *Monitor) publish(res ProbeResult, prev, next status.DeviceStatus, cached bool) {
	payload := events.FromStatus(next, string(res.Classification))

	m.events.ProxyStatus(payload)

	if last, seen := m.lastClass[res.ID]; !seen || last != res.Classification {
		m.events.AggregateStatus(payload)
	}
	m.lastClass[res.ID] = res.Classification

	if cached && !prev.SameRecord(next) {
		m.events.DeviceStatus(payload)
	}

	if cached && !prev.Started && next.Started {
		start := payload
		start.Status = events.ActionStart
		m.events.ServiceEvent(events.ActionStart, start)
	}
}

func (m *Monitor) logStatusChange(prev, next status.DeviceStatus) {
	changes := next.Changes(prev)
	if len(changes) == 0 {
		m.logger.Info("no status change", "id", next.ID)
		return
	}
	m.logger.Info("status changed",
		"id", next.ID,
		"changes", strings.Join(changes, ", "),
		"prev_message", prev.Message,
		"prev_alive", status.Flag(prev.Alive),
		"prev_started", status.Flag(prev.Started),
		"message", next.Message,
		"alive", status.Flag(next.Alive),
		"started", status.Flag(next.Started),
	)
}

// Stats returns the current monitor statistics.
func (m *Monitor) Stats() Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return Stats{
		Running:           m.running.Load(),
		Cycles:            m.cycles.Load(),
		LastCycleAt:       m.lastCycleAt,
		LastCycleDuration: m.lastDuration.String(),
		LastError:         m.lastError,
		SnapshotLoaded:    m.snapshot.Loaded(),
		Devices:           m.snapshot.Len(),
		StatusEntries:     m.statuses.Len(),
		PollInterval:      m.pollInterval.String(),
	}
}

func (m *Monitor) setLastError(err error) {
	m.statsMu.Lock()
	m.lastError = err.Error()
	m.statsMu.Unlock()
}

// sleep waits d or until ctx ends. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
