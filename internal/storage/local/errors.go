package local

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrInvalidID rejects ids that would resolve outside their collection.
	ErrInvalidID = errors.New("invalid record id")
)
