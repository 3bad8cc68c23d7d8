package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/fleetdesk/fleetdesk/pkg/contextkeys"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes a JSON error carrying the request id found in r's context.
// r may be nil.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{Error: message}
	if r != nil {
		resp.RequestID = contextkeys.GetRequestID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusNotFound, message)
}

// WriteInternalError writes an internal server error (500). The cause is not
// echoed to the client.
func WriteInternalError(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, r, http.StatusInternalServerError, "internal server error")
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusServiceUnavailable, message)
}
