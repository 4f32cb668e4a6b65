package device

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr string
	}{
		{name: "valid", mutate: func(*Device) {}},
		{name: "missing host", mutate: func(d *Device) { d.Host = " " }, wantErr: "host is required"},
		{name: "port zero", mutate: func(d *Device) { d.Port = 0 }, wantErr: "port must be"},
		{name: "port too high", mutate: func(d *Device) { d.Port = 70000 }, wantErr: "port must be"},
		{name: "missing controller type", mutate: func(d *Device) { d.ControllerType = "" }, wantErr: "controllerType is required"},
		{name: "bad controller port", mutate: func(d *Device) { d.ControllerPort = -1 }, wantErr: "controllerPort"},
		{name: "missing creator", mutate: func(d *Device) { d.CreatedBy = "" }, wantErr: "createdBy is required"},
		{name: "negative id", mutate: func(d *Device) { d.ID = -4 }, wantErr: "id must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDevice()
			tt.mutate(d)
			err := Validate(d)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidDevice) {
				t.Fatalf("Validate() error = %v, want ErrInvalidDevice", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDevice_JSONEnableFlag(t *testing.T) {
	data, err := json.Marshal(Device{ID: 7, Host: "h", Port: 1, Enabled: true})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"enable":1`) {
		t.Errorf("Marshal() = %s, want enable 1", data)
	}

	var d Device
	if err := json.Unmarshal([]byte(`{"id":7,"host":"h","port":1,"enable":0}`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.Enabled {
		t.Error("Unmarshal() enable 0 produced Enabled = true")
	}
}

func TestPatch_Apply(t *testing.T) {
	d := testDevice()
	port := 6000
	enable := 0
	Patch{Port: &port, Enable: &enable}.Apply(d)

	if d.Port != 6000 || d.Enabled {
		t.Errorf("after Apply() port=%d enabled=%v", d.Port, d.Enabled)
	}
	if d.Host != "10.0.0.5" {
		t.Errorf("Apply() changed unset host to %q", d.Host)
	}
}

func TestDevice_Fallbacks(t *testing.T) {
	d := Device{}
	if d.TypeOrUnknown() != UnknownValue || d.HostOrUnknown() != UnknownValue || d.RemarkOrUnknown() != UnknownValue {
		t.Error("blank metadata did not fall back to unknown")
	}
	if got := (Device{Host: "h", Port: 9}).Address(); got != "h:9" {
		t.Errorf("Address() = %q, want h:9", got)
	}
}
