package upsd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nerrad567/upswatch/internal/wire"
)

// driverWriteTimeout bounds a single request written to a driver socket.
const driverWriteTimeout = 2 * time.Second

type connEventKind int

const (
	connLine connEventKind = iota
	connParseError
	connClosed
)

// connEvent is handed from a driver connection's reader to the owner loop.
type connEvent struct {
	kind   connEventKind
	device string
	connID uint64
	args   []string
	err    error
}

// driverConn is upsd's client connection to one driver's state socket.
type driverConn struct {
	id     uint64
	nc     net.Conn
	closed bool
}

func dialDriver(path string, timeout time.Duration) (net.Conn, error) {
	nc, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", path, err)
	}
	return nc, nil
}

func (c *driverConn) send(line string) error {
	if c.closed {
		return net.ErrClosed
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(driverWriteTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(c.nc, line)
	return err
}

func (c *driverConn) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.nc.Close() //nolint:errcheck // teardown
}

// readLoop forwards every line to the owner until the connection ends.
func (c *driverConn) readLoop(device string, maxLine int, events chan<- connEvent, done <-chan struct{}) {
	r := wire.NewReader(c.nc, maxLine)
	for {
		args, err := r.ReadArgs()
		ev := connEvent{device: device, connID: c.id, args: args, err: err}
		switch {
		case err == nil:
			ev.kind = connLine
		case errors.Is(err, wire.ErrParse):
			ev.kind = connParseError
		default:
			ev.kind = connClosed
		}

		select {
		case events <- ev:
		case <-done:
			return
		}
		if ev.kind == connClosed {
			return
		}
	}
}
