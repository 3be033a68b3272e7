package dstate

import "errors"

var (
	// ErrNotInitialised is returned when the server is used before Init.
	ErrNotInitialised = errors.New("dstate: server not initialised")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("dstate: server closed")

	// ErrShortWrite is returned when a listener accepted only part of a message.
	ErrShortWrite = errors.New("dstate: short write")

	// ErrEndpoint wraps every failure to create the listening socket.
	ErrEndpoint = errors.New("dstate: cannot create state socket")

	// ErrDumpIncomplete means the socket closed before DUMPDONE.
	ErrDumpIncomplete = errors.New("dstate: dump ended before DUMPDONE")
)
