package storage

import "errors"

// Storage errors shared across implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPositionClosed is returned when updating a position that already
	// reached a CLOSED_* status. Closed positions never transition again;
	// ERROR still accepts updates so a failed exit can be retried.
	ErrPositionClosed = errors.New("position already closed")
)
