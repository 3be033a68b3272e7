package dummy

import "errors"

var (
	// ErrSyntax wraps every parse failure with its line number.
	ErrSyntax = errors.New("dummy: syntax error")

	// ErrUnknownVariable is returned by SET for a variable the file never
	// defined.
	ErrUnknownVariable = errors.New("dummy: unknown variable")
)
