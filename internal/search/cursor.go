package search

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rkm/geocatalog/internal/store"
)

// cursorPayload is the JSON body of a pagination token: the resume position
// plus the fingerprint of the query that minted it.
type cursorPayload struct {
	SortValues  []any  `json:"sv"`
	ID          string `json:"id"`
	Fingerprint string `json:"fp"`
}

// EncodeCursor builds an opaque token for a resume position. The token is
// base64url payload, a dot, and a checksum so truncated or edited tokens
// are rejected before use.
func EncodeCursor(after store.AfterKey, fingerprint uint64) (string, error) {
	payload, err := json.Marshal(cursorPayload{
		SortValues:  after.SortValues,
		ID:          after.ID,
		Fingerprint: fmt.Sprintf("%016x", fingerprint),
	})
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + checksum(body), nil
}

// DecodeCursor validates a token and returns the resume position. A
// malformed token or bad checksum yields ErrInvalidCursor; a valid token
// minted by a different query yields ErrCursorMismatch.
func DecodeCursor(token string, fingerprint uint64) (*store.AfterKey, error) {
	body, sum, ok := strings.Cut(token, ".")
	if !ok || sum != checksum(body) {
		return nil, ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidCursor
	}

	if payload.Fingerprint != fmt.Sprintf("%016x", fingerprint) {
		return nil, ErrCursorMismatch
	}
	return &store.AfterKey{SortValues: payload.SortValues, ID: payload.ID}, nil
}

func checksum(body string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(body))
}
