package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/clage-homeserver/internal/audit"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/setup"
)

// homeserverView is a registered device with its polling health.
type homeserverView struct {
	device.Device
	Available bool                `json:"available"`
	Health    *coordinator.Health `json:"health,omitempty"`
}

func (s *Server) view(d device.Device) homeserverView {
	v := homeserverView{Device: d}
	if h, ok := s.coord.Health(d.ID); ok {
		v.Health = &h
		v.Available = h.Available()
	}
	return v
}

// handleListHomeservers returns every registered device.
func (s *Server) handleListHomeservers(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	views := make([]homeserverView, 0, len(devices))
	for _, d := range devices {
		views = append(views, s.view(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"homeservers": views,
		"count":       len(views),
	})
}

// handleGetHomeserver returns one registered device.
func (s *Server) handleGetHomeserver(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(d))
}

// handleAddHomeserver runs the config-entry flow for a new homeserver.
func (s *Server) handleAddHomeserver(w http.ResponseWriter, r *http.Request) {
	if s.setup == nil {
		writeUnavailable(w, "adding homeservers is not enabled")
		return
	}

	var input setup.EntryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := s.origin(r)
	d, err := s.setup.AddEntry(ctx, input)
	if err != nil {
		var fe *setup.FlowError
		if errors.As(err, &fe) {
			status := http.StatusBadRequest
			switch fe.Code {
			case setup.CodeAlreadyConfigured:
				status = http.StatusConflict
			case setup.CodeCouldNotConnect, setup.CodeHomeserverNotActive:
				status = http.StatusBadGateway
			}
			writeJSON(w, status, Error{
				Status:  status,
				Code:    fe.Code,
				Message: fe.Error(),
				Field:   fe.Field,
			})
			return
		}
		s.logger.Error("adding homeserver failed", "error", err)
		writeInternalError(w, "failed to add homeserver")
		return
	}

	s.logger.Info("homeserver added via API", "device_id", d.ID, "caller", caller(r))
	s.recordEntry(ctx, audit.ActionCreate, d.ID, map[string]any{
		"name":       d.Name,
		"ip_address": d.Address,
		"heater_id":  d.HeaterID,
	})
	writeJSON(w, http.StatusCreated, s.view(d))
}

// handleDeleteHomeserver removes a runtime entry.
func (s *Server) handleDeleteHomeserver(w http.ResponseWriter, r *http.Request) {
	if s.setup == nil {
		writeUnavailable(w, "removing homeservers is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	ctx := s.origin(r)
	err := s.setup.RemoveEntry(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("homeserver removed via API", "device_id", id, "caller", caller(r))
		s.recordEntry(ctx, audit.ActionDelete, id, nil)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "homeserver not found")
	case errors.Is(err, setup.ErrConfigManaged):
		writeError(w, http.StatusConflict, ErrCodeConflict, "homeserver is defined in the config file")
	default:
		s.logger.Error("removing homeserver failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to remove homeserver")
	}
}

// handleGetState returns the latest stored snapshot of a device.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, ok := s.coord.Store().Get(d.ID)
	if !ok {
		writeNotFound(w, "no state received yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.ID,
		"available": s.view(d).Available,
		"fields":    snap.Fields,
	})
}

// handleGetField returns one field of the latest snapshot with its metadata.
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	field := chi.URLParam(r, "field")
	value, ok := s.coord.Store().Field(d.ID, field)
	if !ok {
		writeNotFound(w, "field has no value")
		return
	}

	resp := map[string]any{
		"device_id": d.ID,
		"field":     field,
		"entity_id": d.EntityID(field),
		"value":     value,
	}
	if def, ok := homeserver.LookupSensor(field); ok {
		resp["sensor"] = def
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetHistory returns stored snapshots of a device, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history is not enabled")
		return
	}
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q, msg := historyQuery(r)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	entries, err := s.history.GetHistory(r.Context(), d.ID, q)
	if err != nil {
		s.logger.Error("reading state history failed", "device_id", d.ID, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.ID,
		"history":   entries,
		"count":     len(entries),
	})
}

// historyQuery reads limit, since (RFC 3339) and source from the URL. The
// returned message is non-empty when a parameter is invalid.
func historyQuery(r *http.Request) (device.HistoryQuery, string) {
	var q device.HistoryQuery
	params := r.URL.Query()

	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, "limit must be a positive integer"
		}
		q.Limit = device.ClampHistoryLimit(n)
	}
	if raw := params.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, "since must be an RFC 3339 timestamp"
		}
		q.Since = ts
	}
	switch source := params.Get("source"); source {
	case "", device.StateHistorySourcePoll, device.StateHistorySourceManual, device.StateHistorySourceCommand:
		q.Source = source
	default:
		return q, "source must be poll, manual or command"
	}
	return q, ""
}

// handleListSensors returns the static sensor table.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := homeserver.Sensors()
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": sensors,
		"count":   len(sensors),
	})
}

// lookup resolves the {id} URL parameter, writing a 404 when unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (device.Device, bool) {
	d, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "homeserver not found")
		return device.Device{}, false
	}
	return d, true
}
