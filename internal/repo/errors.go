package repo

import "errors"

var (
	// ErrNotFound means the row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("record already exists")
)
