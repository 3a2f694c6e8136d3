package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrExists indicates a record already occupies the key.
	ErrExists = errors.New("store: record already exists")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)
