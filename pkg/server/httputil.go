package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/entrhq/browserpilot/pkg/types"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Parse decodes the JSON body into v. An empty body leaves v untouched.
func Parse(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return types.NewValidationError("Invalid JSON body: " + err.Error())
	}
	return nil
}

// OkJSON writes a JSON response with 200 OK status
func OkJSON(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, v)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the error body shared by the API routes.
type ErrorResponse struct {
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error"`
	Message string          `json:"message,omitempty"`
	Details any             `json:"details,omitempty"`
	Code    types.ErrorCode `json:"code,omitempty"`
	Missing []string        `json:"missing,omitempty"`
	Fields  []string        `json:"fields,omitempty"`
}

// Failure returns an ErrorResponse with success set to false.
func Failure(message string) ErrorResponse {
	f := false
	return ErrorResponse{Success: &f, Error: message}
}

// ErrorFrom describes err with its code and, for the typed errors, the
// fields or settings that caused it.
func ErrorFrom(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Code: types.CodeOf(err)}

	var validationErr *types.ValidationError
	var configErr *types.ConfigurationError
	switch {
	case errors.As(err, &validationErr):
		resp.Fields = validationErr.Fields
	case errors.As(err, &configErr):
		resp.Missing = configErr.Missing
	}
	return resp
}

// Error writes err with the status derived from its code.
func Error(w http.ResponseWriter, err error) {
	WriteJSON(w, types.HTTPStatus(err), ErrorFrom(err))
}

// Unauthorized writes a 401 unauthorized response
func Unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, Failure("Unauthorized"))
}

// wantsStream reports whether the client asked for an event stream.
func wantsStream(r *http.Request, requested bool) bool {
	return requested || strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
