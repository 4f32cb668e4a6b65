package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mcs-device-service/internal/device"
)

// Paging limits for GET /DeviceServiceConfig.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// devicePage is the paged list response.
type devicePage struct {
	Data  []device.Device `json:"data"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// handleListDevices returns one page of device records.
//
// Query parameters:
//   - page: 1-based page number (default 1)
//   - size: page size, 1 to 100 (default 20)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "page must be a positive integer")
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "size must be between 1 and 100")
		return
	}

	devices, total, err := s.devices.ListPage(r.Context(), (page-1)*size, size)
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, devicePage{Data: devices, Total: total, Page: page, Size: size})
}

// handleGetDevice returns a single device record by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err, id, "get")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice stores a new device record. The monitor picks it up
// after the next snapshot reload.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if dev.CreatedBy == "" {
		dev.CreatedBy = subjectFrom(r.Context())
	}

	if err := device.Validate(&dev); err != nil {
		s.writeDeviceError(w, err, dev.ID, "create")
		return
	}

	if err := s.devices.Create(r.Context(), &dev); err != nil {
		s.writeDeviceError(w, err, dev.ID, "create")
		return
	}

	s.logger.Info("device created", "id", dev.ID, "address", dev.Address())
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice applies a partial update to a device record.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	var patch device.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	existing, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err, id, "get")
		return
	}

	patch.Apply(existing)
	if err := device.Validate(existing); err != nil {
		s.writeDeviceError(w, err, id, "update")
		return
	}

	if err := s.devices.Update(r.Context(), existing); err != nil {
		s.writeDeviceError(w, err, id, "update")
		return
	}

	s.logger.Info("device updated", "id", id)
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device record by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	if err := s.devices.Delete(r.Context(), id); err != nil {
		s.writeDeviceError(w, err, id, "delete")
		return
	}

	s.logger.Info("device deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// deviceID parses the {id} URL parameter, writing a 400 when it is invalid.
func deviceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
