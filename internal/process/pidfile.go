package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PIDFilePath returns the pid file for a driver instance. name is the
// state socket name (driver-device).
func PIDFilePath(statePath, name string) string {
	return filepath.Join(statePath, name+".pid")
}

// WritePIDFile records the current process ID.
func WritePIDFile(path string) error {
	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil { //nolint:gosec // pid files are world-readable by convention
		return fmt.Errorf("writing pid file %s: %w", path, err)
	}
	return nil
}

// ReadPIDFile returns the process ID stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNoPIDFile, path)
	}
	if err != nil {
		return 0, fmt.Errorf("reading pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrBadPIDFile, path)
	}
	return pid, nil
}

// RemovePIDFile deletes path, ignoring a missing file.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing pid file %s: %w", path, err)
	}
	return nil
}

// SignalPIDFile sends sig to the process recorded in path and returns its
// pid. A pid file left by a process that is gone is removed and reported
// as ErrNoPIDFile.
func SignalPIDFile(path string, sig unix.Signal) (int, error) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return 0, err
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			//nolint:errcheck // Stale file; the signal error below is what matters
			RemovePIDFile(path)
			return pid, fmt.Errorf("%w: %s names exited process %d", ErrNoPIDFile, path, pid)
		}
		return pid, fmt.Errorf("signalling %d: %w", pid, err)
	}
	return pid, nil
}

// SocketReady returns a ReadyFunc that succeeds once a Unix socket exists
// at path.
func SocketReady(path string) func() error {
	return func() error {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.Mode().Type() != fs.ModeSocket {
			return fmt.Errorf("%s is not a socket", path)
		}
		return nil
	}
}
