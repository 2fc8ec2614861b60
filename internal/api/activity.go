package api

import (
	"net/http"
	"strconv"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/audit"
)

// handleListActivity returns activity records, newest first.
//
// Query parameters:
//   - action: command, command_failed or entry_state
//   - entity_type: light or entry
//   - entity_id: light unique id or entry id
//   - limit: page size (default 50, capped at 200)
//   - offset: records to skip
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeNotFound(w, "activity log not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	res, err := s.activity.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		writeInternalError(w, "failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
