package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested file is not in the store.
	ErrNotFound = errors.New("resource not found")

	// ErrTooLarge is returned when a file exceeds the backend's item size limit.
	ErrTooLarge = errors.New("file too large for store")

	// ErrInvalidFile is returned for files without a name.
	ErrInvalidFile = errors.New("invalid file")
)
