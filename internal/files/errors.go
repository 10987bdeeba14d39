package files

import "errors"

var (
	// ErrNotFound is returned when no file record matches.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidInput is returned for unusable upload arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateKey is returned when a record for the storage key already exists.
	ErrDuplicateKey = errors.New("duplicate file key")
)
