package device

import (
	"encoding/json"
	"strconv"
	"time"
)

// Placeholders used when a device record leaves metadata blank.
const (
	UnknownValue = "unknown"
)

// Device is a configured proxy/controller endpoint under supervision.
//
// Host and Port address the proxy service that the monitor probes.
// ControllerHost and ControllerPort describe the controller behind it and
// are carried as metadata only.
type Device struct {
	ID             int64     `json:"id"`
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	ControllerType string    `json:"controllerType"`
	ControllerHost string    `json:"controllerHost"`
	ControllerPort int       `json:"controllerPort"`
	Remark         string    `json:"remark,omitempty"`
	Enabled        bool      `json:"-"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// deviceJSON mirrors Device with the enabled flag in its 0/1 wire form.
type deviceJSON struct {
	ID             int64     `json:"id"`
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	ControllerType string    `json:"controllerType"`
	ControllerHost string    `json:"controllerHost"`
	ControllerPort int       `json:"controllerPort"`
	Remark         string    `json:"remark,omitempty"`
	Enabled        int       `json:"enable"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MarshalJSON encodes Enabled as "enable": 0 or 1.
func (d Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(deviceJSON{
		ID:             d.ID,
		Host:           d.Host,
		Port:           d.Port,
		ControllerType: d.ControllerType,
		ControllerHost: d.ControllerHost,
		ControllerPort: d.ControllerPort,
		Remark:         d.Remark,
		Enabled:        boolToInt(d.Enabled),
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	})
}

// UnmarshalJSON accepts "enable" as 0/1.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw deviceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Device{
		ID:             raw.ID,
		Host:           raw.Host,
		Port:           raw.Port,
		ControllerType: raw.ControllerType,
		ControllerHost: raw.ControllerHost,
		ControllerPort: raw.ControllerPort,
		Remark:         raw.Remark,
		Enabled:        raw.Enabled != 0,
		CreatedBy:      raw.CreatedBy,
		CreatedAt:      raw.CreatedAt,
		UpdatedAt:      raw.UpdatedAt,
	}
	return nil
}

// Address returns "host:port" for the proxy endpoint.
func (d Device) Address() string {
	return d.Host + ":" + strconv.Itoa(d.Port)
}

// TypeOrUnknown returns the controller type or "unknown" when blank.
func (d Device) TypeOrUnknown() string {
	return orUnknown(d.ControllerType)
}

// HostOrUnknown returns the proxy host or "unknown" when blank.
func (d Device) HostOrUnknown() string {
	return orUnknown(d.Host)
}

// RemarkOrUnknown returns the remark or "unknown" when blank.
func (d Device) RemarkOrUnknown() string {
	return orUnknown(d.Remark)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// Patch holds the optional fields of a partial update. Nil fields are left
// unchanged by Apply.
type Patch struct {
	Host           *string `json:"host"`
	Port           *int    `json:"port"`
	ControllerType *string `json:"controllerType"`
	ControllerHost *string `json:"controllerHost"`
	ControllerPort *int    `json:"controllerPort"`
	Remark         *string `json:"remark"`
	Enable         *int    `json:"enable"`
}

// Apply copies the set fields of p onto d.
func (p Patch) Apply(d *Device) {
	if p.Host != nil {
		d.Host = *p.Host
	}
	if p.Port != nil {
		d.Port = *p.Port
	}
	if p.ControllerType != nil {
		d.ControllerType = *p.ControllerType
	}
	if p.ControllerHost != nil {
		d.ControllerHost = *p.ControllerHost
	}
	if p.ControllerPort != nil {
		d.ControllerPort = *p.ControllerPort
	}
	if p.Remark != nil {
		d.Remark = *p.Remark
	}
	if p.Enable != nil {
		d.Enabled = *p.Enable != 0
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
