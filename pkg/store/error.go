package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConnection is returned when the storage backend is unreachable.
	ErrConnection = errors.New("storage connection failed")
)
