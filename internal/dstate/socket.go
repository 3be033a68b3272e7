package dstate

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// socketUmask keeps other users from connecting while the socket is bound.
	socketUmask = 0o007

	// socketMode is applied after bind so the upsd group can connect.
	socketMode = 0o660
)

// SocketName returns the file name of the state socket for a driver serving
// one device. device may be empty when the driver serves a single UPS.
func SocketName(driver, device string) string {
	if device == "" {
		return driver
	}
	return driver + "-" + device
}

// ParseSocketName splits a socket file name back into driver and device.
//
// Driver names themselves contain dashes ("dummy-ups"), so the name is
// first matched against knownDrivers, longest first. Without a match the
// name is split on its last dash, and a name with no dash is a driver
// serving an unnamed device.
func ParseSocketName(name string, knownDrivers ...string) (driver, device string) {
	best := ""
	for _, d := range knownDrivers {
		if (name == d || strings.HasPrefix(name, d+"-")) && len(d) > len(best) {
			best = d
		}
	}
	if best != "" {
		return best, strings.TrimPrefix(strings.TrimPrefix(name, best), "-")
	}

	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// EndpointError describes a failure to create the state socket, with enough
// context to tell the operator how to fix it.
type EndpointError struct {
	Op        string
	Path      string
	StatePath string
	Err       error
	User      string
	UID       int
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", ErrEndpoint, e.Op, e.Path, e.Err)
}

func (e *EndpointError) Unwrap() []error {
	return []error{ErrEndpoint, e.Err}
}

// Guidance returns a multi-line, operator-facing explanation of the failure.
func (e *EndpointError) Guidance() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Can't create state socket %s: %v\n", e.Path, e.Err)

	switch {
	case errors.Is(e.Err, fs.ErrPermission), errors.Is(e.Err, unix.EACCES), errors.Is(e.Err, unix.EPERM):
		fmt.Fprintf(&b, "\nCurrent user: %s (UID %d)\n\n", e.User, e.UID)
		b.WriteString("Things to try:\n\n")
		fmt.Fprintf(&b, " - set different owners or permissions on %s\n\n", e.StatePath)
		b.WriteString(" - run this as some other user (see the user setting in the config)\n")
	case errors.Is(e.Err, fs.ErrNotExist):
		b.WriteString("\nThings to try:\n\n")
		fmt.Fprintf(&b, " - mkdir %s\n", e.StatePath)
	case errors.Is(e.Err, unix.ENOTDIR):
		b.WriteString("\nThings to try:\n\n")
		fmt.Fprintf(&b, " - rm %s\n\n", e.StatePath)
		fmt.Fprintf(&b, " - mkdir %s\n", e.StatePath)
	}

	return b.String()
}

func newEndpointError(op, path, statePath string, err error) *EndpointError {
	e := &EndpointError{
		Op:        op,
		Path:      path,
		StatePath: statePath,
		Err:       err,
		UID:       os.Geteuid(),
		User:      strconv.Itoa(os.Geteuid()),
	}
	if u, uerr := user.Current(); uerr == nil {
		e.User = u.Username
	}
	return e
}

// listen binds a Unix socket at path, replacing any leftover socket from a
// previous run. The caller owns the returned listener and the path.
func listen(statePath, path string) (*net.UnixListener, error) {
	info, err := os.Stat(statePath)
	if err != nil {
		return nil, newEndpointError("stat", path, statePath, err)
	}
	if !info.IsDir() {
		return nil, newEndpointError("stat", path, statePath, unix.ENOTDIR)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, newEndpointError("remove", path, statePath, err)
	}

	old := unix.Umask(socketUmask)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	unix.Umask(old)
	if err != nil {
		return nil, newEndpointError("bind", path, statePath, err)
	}
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(path, socketMode); err != nil {
		ln.Close() //nolint:errcheck // already failing
		os.Remove(path) //nolint:errcheck // best effort
		return nil, newEndpointError("chmod", path, statePath, err)
	}

	return ln, nil
}

// socketPath joins the state path and socket name.
func socketPath(statePath, driver, device string) string {
	return filepath.Join(statePath, SocketName(driver, device))
}
