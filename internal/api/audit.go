package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/clage-homeserver/internal/audit"
	"github.com/nerrad567/clage-homeserver/internal/command"
)

// origin tags the request context as an API change by the token subject.
func (s *Server) origin(r *http.Request) context.Context {
	return command.WithOrigin(r.Context(), command.Origin{Source: command.SourceAPI, Caller: caller(r)})
}

// recordEntry writes an add/remove to the audit trail when one is configured.
func (s *Server) recordEntry(ctx context.Context, action, deviceID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordEntry(ctx, action, deviceID, details)
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters: action, device_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
