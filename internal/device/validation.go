package device

import (
	"fmt"
	"strings"
)

const (
	maxHostLength   = 253
	maxTypeLength   = 64
	maxRemarkLength = 1024
	maxUserLength   = 100
)

// Validate checks that a device can be stored and probed.
// All problems are reported together, wrapped in ErrInvalidDevice.
func Validate(d *Device) error {
	var problems []string

	if strings.TrimSpace(d.Host) == "" {
		problems = append(problems, "host is required")
	} else if len(d.Host) > maxHostLength {
		problems = append(problems, fmt.Sprintf("host exceeds %d characters", maxHostLength))
	}
	if d.Port < 1 || d.Port > 65535 {
		problems = append(problems, "port must be between 1 and 65535")
	}

	if strings.TrimSpace(d.ControllerType) == "" {
		problems = append(problems, "controllerType is required")
	} else if len(d.ControllerType) > maxTypeLength {
		problems = append(problems, fmt.Sprintf("controllerType exceeds %d characters", maxTypeLength))
	}
	if d.ControllerPort < 0 || d.ControllerPort > 65535 {
		problems = append(problems, "controllerPort must be between 0 and 65535")
	}

	if len(d.Remark) > maxRemarkLength {
		problems = append(problems, fmt.Sprintf("remark exceeds %d characters", maxRemarkLength))
	}

	if strings.TrimSpace(d.CreatedBy) == "" {
		problems = append(problems, "createdBy is required")
	} else if len(d.CreatedBy) > maxUserLength {
		problems = append(problems, fmt.Sprintf("createdBy exceeds %d characters", maxUserLength))
	}

	if d.ID < 0 {
		problems = append(problems, "id must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, strings.Join(problems, "; "))
	}
	return nil
}
