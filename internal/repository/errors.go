package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrNotImplemented signals the operation is not yet implemented for the chosen backend.
	ErrNotImplemented = errors.New("repository: not implemented")
	// ErrConflict indicates a unique-constraint violation (mac/ip/user_code).
	ErrConflict = errors.New("repository: conflict")
)
