package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrUnavailable indicates the backing store could not be reached.
	// It maps to a 5xx-equivalent outcome and is never exposed verbatim to callers.
	ErrUnavailable = errors.New("repository: storage unavailable")
)
