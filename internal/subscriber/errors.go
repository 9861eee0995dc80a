package subscriber

import "errors"

var (
	// ErrSubscriberNotFound is returned when a subscriber doesn't exist
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrListNotFound is returned when a subscriber list doesn't exist
	ErrListNotFound = errors.New("subscriber list not found")

	// ErrDuplicateEmail is returned when a subscriber with the email already exists
	ErrDuplicateEmail = errors.New("subscriber with this email already exists")

	// ErrInvalidInput is returned when request data fails validation
	ErrInvalidInput = errors.New("invalid input")
)
