package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteGeoJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteGeoJSON(w, http.StatusOK, map[string]string{"type": "Feature"}); err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}
	if got := w.Header().Get("Content-Type"); got != "application/geo+json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{
			name:   "bad request",
			write:  func(w http.ResponseWriter) { WriteBadRequest(w, "nope") },
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "invalid parameter",
			write:  func(w http.ResponseWriter) { WriteInvalidParameter(w, "bad limit") },
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidParameter,
		},
		{
			name:   "not found",
			write:  func(w http.ResponseWriter) { WriteNotFound(w, "gone") },
			status: http.StatusNotFound,
			code:   ErrCodeNotFound,
		},
		{
			name:   "internal error",
			write:  func(w http.ResponseWriter) { WriteInternalError(w, "oops") },
			status: http.StatusInternalServerError,
			code:   ErrCodeServerError,
		},
		{
			name: "timeout",
			write: func(w http.ResponseWriter) {
				WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "too slow")
			},
			status: http.StatusGatewayTimeout,
			code:   ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var stacErr STACError
			if err := json.Unmarshal(w.Body.Bytes(), &stacErr); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if stacErr.Code != tt.code {
				t.Errorf("code = %q, want %q", stacErr.Code, tt.code)
			}
			if stacErr.Description == "" {
				t.Error("description is empty")
			}
		})
	}
}
