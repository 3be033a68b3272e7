package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running manager.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrStartTimeout means the process was started but did not become
	// ready within StartTimeout. It keeps running and stays supervised.
	ErrStartTimeout = errors.New("process: startup timer elapsed")

	// ErrNoPIDFile means no pid file exists for the driver.
	ErrNoPIDFile = errors.New("process: pid file not found")

	// ErrBadPIDFile means the pid file does not hold a positive integer.
	ErrBadPIDFile = errors.New("process: malformed pid file")
)
