// Package httpx provides the JSON envelope used by every /api endpoint.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/clubspace/clubspace/internal/shared"
)

// Envelope is the uniform API response body.
type Envelope struct {
	Success    bool               `json:"success"`
	Data       any                `json:"data,omitempty"`
	Error      string             `json:"error,omitempty"`
	Pagination *shared.Pagination `json:"pagination,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Success: true, Data: data})
}

// Page writes a successful envelope carrying pagination metadata.
func Page(w http.ResponseWriter, data any, page shared.Pagination) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: &page})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Error: message})
}

// DecodeJSON decodes a JSON request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
