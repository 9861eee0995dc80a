package campaign

import "errors"

var (
	// ErrNotFound is returned when a campaign, recipient or referenced
	// template or list doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation isn't allowed in the
	// campaign's current status
	ErrInvalidState = errors.New("invalid campaign state")

	// ErrInvalidInput is returned when request data fails validation
	ErrInvalidInput = errors.New("invalid input")
)
