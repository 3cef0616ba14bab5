package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/clage-homeserver/internal/command"
	"github.com/nerrad567/clage-homeserver/internal/coordinator"
)

// handleSetTemperature applies a set_temperature command.
//
// Body: {"device_id": "kitchen", "temperature": 42}. device_id may be
// omitted to address every homeserver; temperature may be a number, a
// numeric string or a sensor entity id.
func (s *Server) handleSetTemperature(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		if errors.Is(err, command.ErrInvalidCommandValue) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.dispatcher.SetTemperature(s.origin(r), cmd)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, command.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, command.ErrInvalidCommandValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Warn("set_temperature failed",
			"command_id", res.CommandID,
			"request_id", requestID(r),
			"error", err,
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":  http.StatusBadGateway,
			"code":    ErrCodeDeviceError,
			"message": err.Error(),
			"result":  res,
		})
	}
}

// handleRefresh runs a refresh and returns its summary.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := s.coord.Refresh(coordinator.WithTrigger(r.Context(), coordinator.TriggerManual))
	if err != nil {
		writeUnavailable(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
