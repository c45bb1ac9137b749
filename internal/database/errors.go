package database

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a persistence race (two writers targeting the
	// same active prediction slot). Callers may retry the whole operation.
	ErrConflict = errors.New("conflicting concurrent write")
)
