package api

import (
	"net/http"

	"github.com/nerrad567/mcs-device-service/internal/status"
)

// messageNotMonitored is reported for a stored device that has no cached
// status: disabled, or added since the last snapshot load.
const messageNotMonitored = "NG"

// handleListProxyStatus returns every cached status in ID order.
func (s *Server) handleListProxyStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statuses.All())
}

// handleGetProxyStatus returns the cached status of one device.
func (s *Server) handleGetProxyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	if st, ok := s.statuses.Get(id); ok {
		writeJSON(w, http.StatusOK, st)
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err, id, "get")
		return
	}

	st := status.Fresh(*dev)
	st.Message = messageNotMonitored
	writeJSON(w, http.StatusOK, st)
}
