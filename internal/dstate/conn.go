package dstate

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/upswatch/internal/wire"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

type eventKind int

const (
	eventAccept eventKind = iota
	eventLine
	eventParseError
	eventClosed
)

// event is handed from the accept and reader goroutines to the owner.
type event struct {
	kind eventKind
	conn *conn
	nc   *net.UnixConn
	args []string
	err  error
}

// conn is one listener connection. Only the owning goroutine writes to it
// or closes it; its reader goroutine only reads.
type conn struct {
	id     uint64
	nc     *net.UnixConn
	raw    syscall.RawConn
	closed bool
}

func newConn(id uint64, nc *net.UnixConn) (*conn, error) {
	raw, err := nc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("raw conn: %w", err)
	}
	return &conn{id: id, nc: nc, raw: raw}, nil
}

// send makes exactly one non-blocking write attempt. Anything short of a
// complete write is an error: there is no per-listener buffering.
func (c *conn) send(msg string) error {
	if c.closed {
		return net.ErrClosed
	}

	var (
		n    int
		werr error
	)
	buf := []byte(msg)
	err := c.raw.Write(func(fd uintptr) bool {
		n, werr = unix.Write(int(fd), buf)
		return true
	})
	if err != nil {
		return err
	}
	if werr != nil {
		return werr
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(buf))
	}
	return nil
}

func (c *conn) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.nc.Close() //nolint:errcheck // teardown
}

// readLoop feeds tokenized lines to the owner until the connection fails.
func (c *conn) readLoop(events chan<- event, done <-chan struct{}, maxLine int) {
	r := wire.NewReader(c.nc, maxLine)
	for {
		args, err := r.ReadArgs()
		ev := event{conn: c, args: args, err: err}
		switch {
		case err == nil:
			ev.kind = eventLine
		case errors.Is(err, wire.ErrParse):
			ev.kind = eventParseError
		default:
			ev.kind = eventClosed
		}

		select {
		case events <- ev:
		case <-done:
			return
		}
		if ev.kind == eventClosed {
			return
		}
	}
}
