package storage

import "errors"

// Shared errors for the journal and purchase stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on inserting an event sequence or
	// purchase id that already exists. The journal and the purchase log
	// are append-only; records are never rewritten in place.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
