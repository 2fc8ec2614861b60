package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Fields carries per-field config flow errors.
	Fields map[string]string `json:"fields,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeController  = "controller_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeHostError maps a platform error onto a response.
//
//   - FieldErrors → 400 with per-field messages
//   - unknown integration, entry or light → 404
//   - command not applied by the controller → 502
//   - host stopped → 503
func writeHostError(w http.ResponseWriter, err error) {
	var fields platform.FieldErrors
	switch {
	case errors.As(err, &fields):
		writeJSON(w, http.StatusBadRequest, Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: "invalid input",
			Fields:  fields,
		})
	case errors.Is(err, platform.ErrIntegrationNotFound),
		errors.Is(err, platform.ErrEntryNotFound),
		errors.Is(err, platform.ErrEntityNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, platform.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, ErrCodeController, err.Error())
	case errors.Is(err, platform.ErrHostStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "host stopped")
	default:
		writeInternalError(w, err.Error())
	}
}
