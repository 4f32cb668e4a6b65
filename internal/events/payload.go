package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/mcs-device-service/internal/status"
)

// Payload is the JSON body of every device event.
//
// Alive and Started are sent as "0"/"1" and Port as a string. Metadata
// fields are omitted when empty. Extra keys are merged into the object;
// a key that collides with a fixed field is ignored.
type Payload struct {
	Message        string
	ID             int64
	Status         string
	Alive          bool
	Started        bool
	ControllerType string
	Host           string
	Port           int
	Remark         string
	Timestamp      time.Time
	Extra          map[string]any
}

var fixedKeys = map[string]struct{}{
	"message": {}, "id": {}, "status": {}, "alive": {}, "started": {},
	"controllerType": {}, "host": {}, "port": {}, "remark": {}, "timestamp": {},
}

// FromStatus builds a payload from a cached status record.
func FromStatus(s status.DeviceStatus, classification string) Payload {
	return Payload{
		Message:        s.Message,
		ID:             s.ID,
		Status:         classification,
		Alive:          s.Alive,
		Started:        s.Started,
		ControllerType: s.ControllerType,
		Host:           s.Host,
		Port:           s.Port,
		Remark:         s.Remark,
	}
}

// MarshalJSON writes the wire form.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+10)
	for k, v := range p.Extra {
		if _, fixed := fixedKeys[k]; !fixed {
			out[k] = v
		}
	}

	out["message"] = p.Message
	out["id"] = p.ID
	out["status"] = p.Status
	out["alive"] = status.Flag(p.Alive)
	out["started"] = status.Flag(p.Started)
	if p.ControllerType != "" {
		out["controllerType"] = p.ControllerType
	}
	if p.Host != "" {
		out["host"] = p.Host
	}
	if p.Port != 0 {
		out["port"] = strconv.Itoa(p.Port)
	}
	if p.Remark != "" {
		out["remark"] = p.Remark
	}
	if !p.Timestamp.IsZero() {
		out["timestamp"] = p.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the wire form. Unknown keys land in Extra. Numeric
// fields accept both numbers and numeric strings.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Payload
	var err error
	for key, value := range raw {
		switch key {
		case "message":
			err = json.Unmarshal(value, &out.Message)
		case "status":
			err = json.Unmarshal(value, &out.Status)
		case "controllerType":
			err = json.Unmarshal(value, &out.ControllerType)
		case "host":
			err = json.Unmarshal(value, &out.Host)
		case "remark":
			err = json.Unmarshal(value, &out.Remark)
		case "id":
			out.ID, err = looseInt(value)
		case "port":
			var port int64
			port, err = looseInt(value)
			out.Port = int(port)
		case "alive":
			out.Alive, err = status.ParseFlag(value)
		case "started":
			out.Started, err = status.ParseFlag(value)
		case "timestamp":
			var ts string
			if err = json.Unmarshal(value, &ts); err == nil && ts != "" {
				out.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
			}
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if out.Extra == nil {
					out.Extra = make(map[string]any)
				}
				out.Extra[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	*p = out
	return nil
}

// looseInt accepts 7, "7" and null.
func looseInt(raw json.RawMessage) (int64, error) {
	if string(raw) == "null" {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
