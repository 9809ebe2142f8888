// Package httputil provides common HTTP utilities for service handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/R3E-Network/dauth-gateway/infrastructure/logging"
)

var defaultLogger = logging.NewFromEnv("httputil")

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		defaultLogger.WithError(err).Warn("write json response")
	}
}

// plainError is the minimal {code, message} envelope used by the generic
// status-code helpers below. The gateway's own endpoints use their own
// {status, error_code, error_msg} envelope (see internal/httpapi) and do
// not go through this type; it exists for ambient failures (malformed
// JSON, oversized bodies) that occur before a gatewayerr.Error can be
// constructed.
type plainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, plainError{Code: code, Message: message})
}

// WriteErrorResponse is the middleware-facing counterpart of writeError: it
// additionally carries a details map for cases (body too large, timeout)
// where the client benefits from a machine-readable limit/cause. code may be
// empty, in which case the numeric status alone distinguishes the failure.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	_ = r
	WriteJSON(w, status, struct {
		Code    string         `json:"code,omitempty"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}{Code: code, Message: message, Details: details})
}

// BadRequest writes a 400 Bad Request response.
func BadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized writes a 401 Unauthorized response.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "internal server error"
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// ServiceUnavailable writes a 503 Service Unavailable response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	if message == "" {
		message = "service unavailable"
	}
	writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

// DecodeJSON decodes a JSON request body into the provided struct.
// Returns false and writes an error response if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		if errors.Is(err, io.EOF) {
			BadRequest(w, "request body is empty")
			return false
		}
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}
