package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Config entries. POST names the integration domain in the {id}
		// segment; the other routes name an entry ID.
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.handleListEntries)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntry)
				r.Post("/", s.handleCreateEntry)
				r.Delete("/", s.handleDeleteEntry)
				r.Post("/reload", s.handleReloadEntry)
			})
		})

		r.Route("/lights", func(r chi.Router) {
			r.Get("/", s.handleListLights)

			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/", s.handleGetLight)
				r.Post("/turn_on", s.handleTurnOn)
				r.Post("/turn_off", s.handleTurnOff)
				r.Post("/refresh", s.handleRefresh)
				r.Get("/history", s.handleLightHistory)
			})
		})

		r.Get("/handlers", s.handleListHandlers)
		r.Get("/activity", s.handleListActivity)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	states := s.host.States()
	available := 0
	for _, st := range states {
		if st.Available {
			available++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"entries":           len(s.host.Entries()),
		"lights":            len(states),
		"lights_available":  available,
		"websocket_clients": s.hub.ClientCount(),
	})
}
