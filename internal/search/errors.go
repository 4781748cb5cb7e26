package search

import "errors"

var (
	// ErrInvalidQuery marks a request that fails validation before any
	// store work happens.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidCursor marks a pagination token that is malformed or
	// fails its checksum.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrCursorMismatch marks a structurally valid token presented with a
	// query that differs from the one that minted it.
	ErrCursorMismatch = errors.New("cursor does not match query")

	// ErrTimeout marks a search abandoned at its deadline.
	ErrTimeout = errors.New("search deadline exceeded")
)
