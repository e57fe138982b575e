// Package httputil provides shared HTTP request/response helpers.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/R3E-Network/fund_layer/internal/errors"
)

const maxBodyBytes = 1 << 20 // 1 MiB request body cap

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a 200 success envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// WriteCreated writes a 201 success envelope.
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// WriteError writes an error envelope using the taxonomy's status mapping.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, errors.HTTPStatus(err), APIResponse{Success: false, Error: err.Error()})
}

// BadRequest writes a 400 error envelope.
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: message})
}

// InternalError writes a 500 error envelope.
func InternalError(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusInternalServerError, APIResponse{Success: false, Error: message})
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
// Returns false if decoding failed and a response has been written.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		BadRequest(w, "empty request body")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
