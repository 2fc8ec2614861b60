package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// turnOnRequest is the optional body of POST /lights/{uid}/turn_on.
type turnOnRequest struct {
	Brightness *int `json:"brightness"`
}

// lightID returns the unescaped {uid} path segment.
func lightID(r *http.Request) string {
	raw := chi.URLParam(r, "uid")
	if uid, err := url.PathUnescape(raw); err == nil {
		return uid
	}
	return raw
}

// handleListLights returns snapshots of every loaded light.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	states := s.host.States()
	writeJSON(w, http.StatusOK, map[string]any{"lights": states, "count": len(states)})
}

// handleGetLight returns one light snapshot.
func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	st, err := s.host.State(lightID(r))
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleTurnOn turns a light on. Without a brightness the light goes to full.
//
// Request body (optional):
//
//	{"brightness": 128}
//
// Responses:
//   - 200: the snapshot after the read-back
//   - 400: brightness outside 0..255
//   - 502: the controller did not accept the write
func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	var req turnOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var level *uint8
	if req.Brightness != nil {
		if *req.Brightness < 0 || *req.Brightness > 255 {
			writeBadRequest(w, "brightness must be between 0 and 255")
			return
		}
		v := uint8(*req.Brightness)
		level = &v
	}

	uid := lightID(r)
	if err := s.host.TurnOn(r.Context(), uid, level); err != nil {
		writeHostError(w, err)
		return
	}
	s.writeLightState(w, uid)
}

// handleTurnOff turns a light off.
func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	uid := lightID(r)
	if err := s.host.TurnOff(r.Context(), uid); err != nil {
		writeHostError(w, err)
		return
	}
	s.writeLightState(w, uid)
}

// handleRefresh reads a light from its controller now. A failed read is
// reported on the snapshot, not as an HTTP error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	uid := lightID(r)
	if _, err := s.host.State(uid); err != nil {
		writeHostError(w, err)
		return
	}
	if err := s.host.Refresh(r.Context(), uid); err != nil {
		s.logger.Debug("light refresh failed", "light", uid, "error", err)
	}
	s.writeLightState(w, uid)
}

// handleLightHistory returns recorded state changes, newest first.
//
// Query parameters:
//   - limit: maximum records (default 50, capped at 500)
func (s *Server) handleLightHistory(w http.ResponseWriter, r *http.Request) {
	uid := lightID(r)
	if _, err := s.host.State(uid); err != nil {
		writeHostError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.host.History(r.Context(), uid, limit)
	if err != nil {
		writeInternalError(w, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unique_id": uid, "history": records, "count": len(records)})
}

func (s *Server) writeLightState(w http.ResponseWriter, uid string) {
	st, err := s.host.State(uid)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleListHandlers returns counters for every controller connection.
func (s *Server) handleListHandlers(w http.ResponseWriter, _ *http.Request) {
	stats := []driver.Stats{}
	if s.handlers != nil {
		for _, h := range s.handlers.Handlers() {
			stats = append(stats, h.Stats())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"handlers": stats, "count": len(stats)})
}
