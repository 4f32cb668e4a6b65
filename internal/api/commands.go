package api

import (
	"fmt"
	"net/http"

	"github.com/nerrad567/mcs-device-service/internal/events"
)

// handleCommand returns a handler publishing an operator command for one
// device on the fleet topic of action. The status cache is not touched.
func (s *Server) handleCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceID(w, r)
		if !ok {
			return
		}

		dev, err := s.devices.GetByID(r.Context(), id)
		if err != nil {
			s.writeDeviceError(w, err, id, "get")
			return
		}

		msg := fmt.Sprintf("Proxy service %d %s initiated", id, action)
		var extra map[string]any
		if sub := subjectFrom(r.Context()); sub != "" {
			extra = map[string]any{"requestedBy": sub}
		}
		published := s.events.ServiceEvent(action, events.Payload{
			Message:        msg,
			ID:             id,
			Status:         action,
			ControllerType: dev.TypeOrUnknown(),
			Host:           dev.HostOrUnknown(),
			Port:           dev.Port,
			Remark:         dev.RemarkOrUnknown(),
			Extra:          extra,
		})
		if !published {
			s.logger.Warn("operator command not published", "id", id, "action", action)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":   msg,
			"published": published,
		})
	}
}

// handleMonitorReload marks the device snapshot stale. The monitor reloads
// it from the database before its next cycle.
func (s *Server) handleMonitorReload(w http.ResponseWriter, _ *http.Request) {
	s.monitor.ResetSnapshot()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Device snapshot reload scheduled",
	})
}

// handleMonitorStatus returns the monitor loop statistics.
func (s *Server) handleMonitorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Stats())
}
