package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bobmcallan/dsefeed/internal/common"
)

// Response is the envelope every /v1 endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope carrying data.
func WriteSuccess(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// WriteError writes a failed envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Response{Success: false, Message: message})
}

// WriteServiceError maps a query error onto an HTTP status. message is the
// client-facing summary; the cause goes in the error field.
func WriteServiceError(w http.ResponseWriter, err error, message string) {
	WriteJSON(w, statusForError(err), Response{Success: false, Message: message, Error: err.Error()})
}

func statusForError(err error) int {
	var (
		unavailable *common.DataUnavailableError
		fetchErr    *common.FetchError
	)
	switch {
	case errors.Is(err, common.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		if unavailable.Reason == common.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		// includes a bare ParseError: a drifted page outside any cache path
		return http.StatusInternalServerError
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}
