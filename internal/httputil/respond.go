// Package httputil holds the JSON request/response helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shelfwise/library-service/internal/errors"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a detail error body with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Detail: message})
}

// WriteServiceError maps err onto the HTTP surface. Unrecognized errors are
// reported as an opaque 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	if se := errors.GetServiceError(err); se != nil {
		WriteError(w, se.HTTPStatus, se.Message)
		return
	}
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
