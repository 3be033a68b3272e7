package state

import "errors"

var (
	// ErrNotFound is returned when an operation names a variable that does
	// not exist in the store.
	ErrNotFound = errors.New("state: variable not found")

	// ErrInvalidAux is returned when an aux value is not an integer.
	ErrInvalidAux = errors.New("state: invalid aux value")
)
