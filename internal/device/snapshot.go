package device

import (
	"sort"
	"sync"
)

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

// StatusSeeder receives the device list whenever a snapshot is loaded and
// rebuilds its per-device status entries from it.
type StatusSeeder interface {
	Seed(devices []Device)
}

// Snapshot is the in-memory device configuration used by the monitor.
//
// Load replaces the whole mapping at once and reseeds the status cache;
// between loads the snapshot is read-only. Loading normally happens once per
// process. Reset marks the snapshot stale so the owner reloads it; nothing
// reloads it automatically.
//
// All methods are safe for concurrent use.
type Snapshot struct {
	mu      sync.RWMutex
	byID    map[int64]Device
	ordered []Device
	loaded  bool

	statuses StatusSeeder
	logger   Logger
}

// NewSnapshot creates an empty snapshot that seeds statuses on every Load.
// statuses may be nil.
func NewSnapshot(statuses StatusSeeder) *Snapshot {
	return &Snapshot{
		byID:     make(map[int64]Device),
		statuses: statuses,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the snapshot.
func (s *Snapshot) SetLogger(logger Logger) {
	s.logger = logger
}

// Load replaces the snapshot with devices and reseeds the status cache.
// Later duplicates of an ID win.
func (s *Snapshot) Load(devices []Device) {
	byID := make(map[int64]Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	ordered := make([]Device, 0, len(byID))
	for _, d := range byID {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	s.mu.Lock()
	s.byID = byID
	s.ordered = ordered
	s.loaded = true
	if s.statuses != nil {
		s.statuses.Seed(ordered)
	}
	s.mu.Unlock()

	enabled := 0
	for _, d := range ordered {
		if d.Enabled {
			enabled++
		}
	}
	s.logger.Info("device snapshot loaded", "devices", len(ordered), "enabled", enabled)
}

// Get returns the device with the given ID.
func (s *Snapshot) Get(id int64) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

// List returns all devices in ascending ID order. The slice is a copy.
func (s *Snapshot) List() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of devices in the snapshot.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

// Loaded reports whether Load has run since creation or the last Reset.
func (s *Snapshot) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Reset marks the snapshot stale. Current contents stay readable until
// the next Load.
func (s *Snapshot) Reset() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	s.logger.Info("device snapshot reset, reload pending")
}
