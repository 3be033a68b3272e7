package upsd

import "errors"

// Errors returned by Daemon requests. The API layer maps them to HTTP
// status codes with errors.Is.
var (
	// ErrUnknownDevice is returned when no device has the requested name.
	ErrUnknownDevice = errors.New("upsd: unknown device")

	// ErrDriverNotConnected is returned when the device's driver socket is down.
	ErrDriverNotConnected = errors.New("upsd: driver not connected")

	// ErrDataStale is returned when the device is connected but its data is stale.
	ErrDataStale = errors.New("upsd: data stale")

	// ErrVarNotSupported is returned when the device has no such variable.
	ErrVarNotSupported = errors.New("upsd: variable not supported")

	// ErrReadOnly is returned when SET targets a variable without the RW flag.
	ErrReadOnly = errors.New("upsd: variable is read-only")

	// ErrTooLong is returned when a STRING value exceeds the variable's length limit.
	ErrTooLong = errors.New("upsd: value too long")

	// ErrInvalidValue is returned when a value is not one of the variable's
	// enums or cannot be carried on a single protocol line.
	ErrInvalidValue = errors.New("upsd: invalid value")

	// ErrCmdNotSupported is returned when the device does not list the command.
	ErrCmdNotSupported = errors.New("upsd: instant command not supported")

	// ErrNotRunning is returned by requests made while Run is not active.
	ErrNotRunning = errors.New("upsd: daemon not running")
)
