package status

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/mcs-device-service/internal/device"
)

// Wire values for the alive and started flags.
const (
	flagOff = "0"
	flagOn  = "1"
)

// DefaultMessage is the message of a freshly seeded status.
const DefaultMessage = "OK"

// DeviceStatus is the cached health of one device.
type DeviceStatus struct {
	ID             int64
	Message        string
	Alive          bool
	Started        bool
	ControllerType string
	Host           string
	Port           int
	Remark         string
}

// Fresh returns the initial status for an enabled device.
func Fresh(d device.Device) DeviceStatus {
	return DeviceStatus{
		ID:             d.ID,
		Message:        DefaultMessage,
		ControllerType: d.TypeOrUnknown(),
		Host:           d.HostOrUnknown(),
		Port:           d.Port,
		Remark:         d.RemarkOrUnknown(),
	}
}

// SameRecord reports whether message, alive and started are equal.
func (s DeviceStatus) SameRecord(other DeviceStatus) bool {
	return s.Message == other.Message && s.Alive == other.Alive && s.Started == other.Started
}

// Changes lists the record fields that differ from prev, formatted for logs.
func (s DeviceStatus) Changes(prev DeviceStatus) []string {
	var changes []string
	if prev.Message != s.Message {
		changes = append(changes, fmt.Sprintf("message: %q -> %q", prev.Message, s.Message))
	}
	if prev.Alive != s.Alive {
		changes = append(changes, fmt.Sprintf("alive: %q -> %q", Flag(prev.Alive), Flag(s.Alive)))
	}
	if prev.Started != s.Started {
		changes = append(changes, fmt.Sprintf("started: %q -> %q", Flag(prev.Started), Flag(s.Started)))
	}
	return changes
}

// Flag renders a boolean in the "0"/"1" wire form.
func Flag(b bool) string {
	if b {
		return flagOn
	}
	return flagOff
}

// ParseFlag accepts "0"/"1" as well as JSON booleans.
func ParseFlag(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case flagOn, "true":
			return true, nil
		case flagOff, "false", "":
			return false, nil
		}
		return false, fmt.Errorf("invalid flag value %q", s)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("invalid flag value %s", raw)
	}
	return b, nil
}

type statusJSON struct {
	ID             int64           `json:"id"`
	Message        string          `json:"message"`
	Alive          json.RawMessage `json:"alive"`
	Started        json.RawMessage `json:"started"`
	ControllerType string          `json:"controllerType"`
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	Remark         string          `json:"remark"`
}

// MarshalJSON writes alive and started as "0"/"1".
func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{
		ID:             s.ID,
		Message:        s.Message,
		Alive:          json.RawMessage(`"` + Flag(s.Alive) + `"`),
		Started:        json.RawMessage(`"` + Flag(s.Started) + `"`),
		ControllerType: s.ControllerType,
		Host:           s.Host,
		Port:           s.Port,
		Remark:         s.Remark,
	})
}

// UnmarshalJSON accepts the "0"/"1" wire form or JSON booleans.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	alive, err := ParseFlag(raw.Alive)
	if err != nil {
		return fmt.Errorf("alive: %w", err)
	}
	started, err := ParseFlag(raw.Started)
	if err != nil {
		return fmt.Errorf("started: %w", err)
	}
	*s = DeviceStatus{
		ID:             raw.ID,
		Message:        raw.Message,
		Alive:          alive,
		Started:        started,
		ControllerType: raw.ControllerType,
		Host:           raw.Host,
		Port:           raw.Port,
		Remark:         raw.Remark,
	}
	return nil
}
