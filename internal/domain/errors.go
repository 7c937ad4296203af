package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentUpdate means another writer holds the timer row. Callers
	// may retry.
	ErrConcurrentUpdate = errors.New("concurrent update on sla timer")
	// ErrDuplicate means a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrMissingReference means a referenced row does not exist.
	ErrMissingReference = errors.New("referenced record does not exist")
)
