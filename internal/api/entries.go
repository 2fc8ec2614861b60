package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListEntries returns every config entry with its runtime state.
func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	entries := s.host.Entries()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleGetEntry returns a single entry by ID.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.host.Entry(chi.URLParam(r, "id"))
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleCreateEntry submits the config flow of the integration named in
// the path. The body is the flow input; an empty body applies defaults.
//
// Responses:
//   - 201: entry created; its state shows whether setup succeeded
//   - 400: invalid JSON or per-field validation errors
//   - 404: no integration for the domain
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "id")

	input := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	e, err := s.host.CreateEntry(r.Context(), domain, input)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleDeleteEntry unloads an entry and removes it from storage.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.host.Entry(id); err != nil {
		writeHostError(w, err)
		return
	}
	if err := s.host.RemoveEntry(r.Context(), id); err != nil {
		writeHostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReloadEntry unloads and sets up an entry again. A setup that fails
// is not an HTTP error: the returned entry carries the state and reason.
func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.host.ReloadEntry(r.Context(), id); err != nil {
		if _, lookupErr := s.host.Entry(id); lookupErr != nil {
			writeHostError(w, lookupErr)
			return
		}
		s.logger.Warn("config entry reload failed", "entry", id, "error", err)
	}

	e, err := s.host.Entry(id)
	if err != nil {
		writeHostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
