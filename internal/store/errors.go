package store

import "errors"

var (
	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when an apply mutation targets a closed task.
	ErrConflict = errors.New("task is closed")
	// ErrInvalidMutation is returned when a mutation would break the
	// closed-iff-applied invariant.
	ErrInvalidMutation = errors.New("invalid task mutation")
)
