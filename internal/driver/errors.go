package driver

import "errors"

var (
	// ErrNoPort is returned by Run when Options.Port is empty.
	ErrNoPort = errors.New("driver: no port specified")

	// ErrUnknownCommand is returned by drivers for an INSTCMD they do not
	// implement.
	ErrUnknownCommand = errors.New("driver: unknown instant command")

	// ErrReadOnly is returned by drivers refusing a SET.
	ErrReadOnly = errors.New("driver: variable is not writable")
)
