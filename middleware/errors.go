package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goPresence "github.com/MrEthical07/goPresence"
)

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goPresence.ErrEvidenceRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goPresence.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, goPresence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, goPresence.ErrScheduleDenied):
		return http.StatusForbidden
	case errors.Is(err, goPresence.ErrState):
		return http.StatusConflict
	case errors.Is(err, goPresence.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON body {"error": "..."} with the status from
// [StatusFor]. Server-side failures are reported without their detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
