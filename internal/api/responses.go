// Package api provides HTTP handlers and routing for the catalog service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Media types served by the API. Item payloads use the GeoJSON type so
// clients negotiating per OGC API - Features get the right one.
const (
	mediaJSON    = "application/json"
	mediaGeoJSON = "application/geo+json"
)

// Error codes carried in the body of non-2xx responses.
const (
	ErrCodeBadRequest       = "BadRequest"
	ErrCodeInvalidParameter = "InvalidParameterValue"
	ErrCodeInvalidCursor    = "InvalidCursor"
	ErrCodeCursorMismatch   = "CursorMismatch"
	ErrCodeNotFound         = "NotFound"
	ErrCodeMethodNotAllowed = "MethodNotAllowed"
	ErrCodeTimeout          = "Timeout"
	ErrCodeNotImplemented   = "NotImplemented"
	ErrCodeServerError      = "ServerError"
)

// STACError is the body of every error response.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// WriteJSON encodes v as application/json with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return writeBody(w, status, mediaJSON, v)
}

// WriteGeoJSON encodes v as application/geo+json with the given status.
func WriteGeoJSON(w http.ResponseWriter, status int, v any) error {
	return writeBody(w, status, mediaGeoJSON, v)
}

// WriteError writes an error body with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeBody(w, status, mediaJSON, STACError{Code: code, Description: message})
}

func writeBody(w http.ResponseWriter, status int, mediaType string, v any) error {
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		// The status line is already on the wire at this point, so the
		// failure can only be recorded.
		slog.Error("encoding response body", slog.String("error", err.Error()))
	}
	return err
}

// WriteBadRequest writes a 400 with the generic bad request code.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteInvalidParameter writes a 400 for a malformed request parameter.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalError writes a 500. The message should not leak internals;
// callers log the underlying error themselves.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeServerError, message)
}
