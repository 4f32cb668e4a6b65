package status

import (
	"sort"
	"sync"

	"github.com/nerrad567/mcs-device-service/internal/device"
)

// Cache maps device ID to its last known status.
//
// Entries are created only by Seed, so a device that was disabled at
// snapshot load time never has one. Upsert is the single write path for
// existing entries. All methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]DeviceStatus
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[int64]DeviceStatus)}
}

// Seed replaces every entry with a fresh status for each enabled device.
func (c *Cache) Seed(devices []device.Device) {
	entries := make(map[int64]DeviceStatus, len(devices))
	for _, d := range devices {
		if d.Enabled {
			entries[d.ID] = Fresh(d)
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Get returns a copy of the status for id.
func (c *Cache) Get(id int64) (DeviceStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[id]
	return s, ok
}

// All returns every status ordered by ID.
func (c *Cache) All() []DeviceStatus {
	c.mu.RLock()
	out := make([]DeviceStatus, 0, len(c.entries))
	for _, s := range c.entries {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Upsert applies update to the entry for id under the cache lock and stores
// the result. The ID of the returned record is always id. When there is no
// entry for id nothing is written and ok is false.
func (c *Cache) Upsert(id int64, update func(prev DeviceStatus) DeviceStatus) (prev, next DeviceStatus, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok = c.entries[id]
	if !ok {
		return DeviceStatus{}, DeviceStatus{}, false
	}
	next = update(prev)
	next.ID = id
	c.entries[id] = next
	return prev, next, true
}
