package dstate

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/upswatch/internal/state"
	"github.com/nerrad567/upswatch/internal/wire"
)

// eventQueueSize bounds events waiting for the owner between polls.
const eventQueueSize = 64

// Config identifies the state socket of one driver instance.
type Config struct {
	// StatePath is the directory holding state sockets.
	StatePath string

	// Driver is the driver program name, e.g. "dummy-ups".
	Driver string

	// Device is the UPS name the driver serves. Optional.
	Device string

	// MaxLineLength bounds inbound protocol lines.
	// Default: wire.DefaultMaxLineLength.
	MaxLineLength int
}

// Handlers receive the two mutation requests listeners may send.
// Either may be nil; the request is then logged and dropped.
type Handlers struct {
	// InstCmd runs an instant command. extra is empty unless the listener
	// supplied an argument.
	InstCmd func(cmd, extra string) error

	// SetVar asks the driver to change a variable. The driver decides
	// whether to accept it and publishes any resulting change itself.
	SetVar func(name, value string) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server publishes one device's state to every connected listener.
//
// All publish methods, Poll and Shutdown must be called from the same
// goroutine (the driver's main loop). Background goroutines only accept
// connections and read lines; they hand everything to that goroutine
// through Poll, so the store and the connection set have a single owner.
type Server struct {
	cfg  Config
	path string

	ln     *net.UnixListener
	events chan event
	done   *closeOnce
	wg     sync.WaitGroup

	store *state.Store
	cmds  *state.Commands
	stale bool

	conns  []*conn
	nextID uint64

	status      []string
	alarm       []string
	alarmActive bool

	handlers Handlers
	logger   Logger
	closed   bool
}

// New creates a server for cfg. Call Init to bind the socket.
func New(cfg Config) *Server {
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = wire.DefaultMaxLineLength
	}
	return &Server{
		cfg:    cfg,
		path:   socketPath(cfg.StatePath, cfg.Driver, cfg.Device),
		events: make(chan event, eventQueueSize),
		done:   newCloseOnce(),
		store:  state.NewStore(),
		cmds:   state.NewCommands(),
		stale:  true,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Init.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetHandlers installs the SET and INSTCMD handlers.
func (s *Server) SetHandlers(h Handlers) {
	s.handlers = h
}

// SocketPath returns the filesystem path of the state socket.
func (s *Server) SocketPath() string {
	return s.path
}

// Init binds the state socket and starts accepting listeners.
//
// Returns:
//   - *EndpointError if the socket cannot be created; its Guidance method
//     explains the fix to the operator
func (s *Server) Init() error {
	if s.closed {
		return ErrClosed
	}

	ln, err := listen(s.cfg.StatePath, s.path)
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("state socket listening", "path", s.path)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.ln.AcceptUnix()
		if err != nil {
			select {
			case <-s.done.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		select {
		case s.events <- event{kind: eventAccept, nc: nc}:
		case <-s.done.Done():
			nc.Close() //nolint:errcheck // shutting down
			return
		}
	}
}

// Poll is the server's only blocking point. It waits up to timeout for
// listener activity or for extra to become ready, then handles every
// pending connection and line before returning.
//
// Parameters:
//   - timeout: maximum wait; zero or negative polls without blocking
//   - extra: the driver's own wake-up source, nil if none
//
// Returns:
//   - true if extra was ready
func (s *Server) Poll(timeout time.Duration, extra <-chan struct{}) bool {
	if s.closed {
		return false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	} else {
		closedCh := make(chan time.Time)
		close(closedCh)
		expired = closedCh
	}

	ready := false
	select {
	case ev := <-s.events:
		s.handleEvent(ev)
	case <-extra:
		ready = true
	case <-expired:
	}

	s.drainEvents()

	if !ready {
		select {
		case <-extra:
			ready = true
		default:
		}
	}
	return ready
}

func (s *Server) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Server) handleEvent(ev event) {
	switch ev.kind {
	case eventAccept:
		s.addConn(ev.nc)
	case eventLine:
		if !ev.conn.closed {
			s.handleCommand(ev.conn, ev.args)
		}
	case eventParseError:
		if !ev.conn.closed {
			s.logger.Info("parse error on state socket", "conn", ev.conn.id, "error", ev.err)
		}
	case eventClosed:
		if !ev.conn.closed {
			s.logger.Debug("listener disconnected", "conn", ev.conn.id, "error", ev.err)
		}
		s.removeConn(ev.conn)
	}
}

func (s *Server) addConn(nc *net.UnixConn) {
	s.nextID++
	c, err := newConn(s.nextID, nc)
	if err != nil {
		s.logger.Warn("dropping listener", "error", err)
		nc.Close() //nolint:errcheck // unusable
		return
	}

	s.conns = append(s.conns, c)
	s.logger.Debug("listener connected", "conn", c.id, "listeners", len(s.conns))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.readLoop(s.events, s.done.Done(), s.cfg.MaxLineLength)
	}()
}

// removeConn closes c and forgets it. Safe to call more than once.
func (s *Server) removeConn(c *conn) {
	c.close()
	s.conns = slices.DeleteFunc(s.conns, func(x *conn) bool { return x == c })
}

// sendTo writes msg to one listener, dropping it on any failure.
func (s *Server) sendTo(c *conn, msg string) bool {
	if err := c.send(msg); err != nil {
		s.logger.Debug("write to listener failed, disconnecting", "conn", c.id, "error", err)
		s.removeConn(c)
		return false
	}
	return true
}

// broadcast writes msg to every listener. A failing listener is dropped
// without affecting delivery to the others.
func (s *Server) broadcast(msg string) {
	for _, c := range slices.Clone(s.conns) {
		s.sendTo(c, msg)
	}
}

// ListenerCount returns the number of connected listeners.
func (s *Server) ListenerCount() int {
	return len(s.conns)
}

// Shutdown closes the socket and every listener, releases all state and
// removes the socket file. Calling it again is a no-op.
func (s *Server) Shutdown() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done.Close()

	var errs []error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing listener: %w", err))
		}
	}
	for _, c := range s.conns {
		c.close()
	}
	s.conns = nil

	s.wg.Wait()

	// Connections accepted but never handed to the owner.
drain:
	for {
		select {
		case ev := <-s.events:
			if ev.kind == eventAccept {
				ev.nc.Close() //nolint:errcheck // shutting down
			}
		default:
			break drain
		}
	}

	if s.ln != nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing socket: %w", err))
		}
	}

	s.store.Reset()
	s.cmds.Reset()
	s.logger.Info("state socket closed", "path", s.path)

	return errors.Join(errs...)
}
