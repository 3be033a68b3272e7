package dummy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nerrad567/upswatch/internal/dstate"
)

// DriverName is the program and socket name of this driver.
const DriverName = "dummy-ups"

// Mode selects how the file is replayed.
type Mode string

const (
	// ModeOnce applies the whole file, then again after each change.
	ModeOnce Mode = "dummy-once"

	// ModeLoop steps through TIMER sections and restarts at the end.
	ModeLoop Mode = "dummy-loop"
)

// ModeFor returns the default mode for a file: ModeLoop for ".seq",
// ModeOnce otherwise.
func ModeFor(path string) Mode {
	if strings.EqualFold(filepath.Ext(path), ".seq") {
		return ModeLoop
	}
	return ModeOnce
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

// Driver replays a definition file. It implements driver.Driver,
// driver.Controller and driver.Waker.
type Driver struct {
	path   string
	mode   Mode
	logger Logger
	now    func() time.Time

	watcher *fsnotify.Watcher
	wake    chan struct{}
	changed atomic.Bool

	entries []Entry
	pos     int
	nextAt  time.Time
	defined map[string]bool
}

// New creates a driver for the file at path. An empty mode selects
// ModeFor(path).
func New(path string, mode Mode) *Driver {
	if mode == "" {
		mode = ModeFor(path)
	}
	return &Driver{
		path:    path,
		mode:    mode,
		logger:  noopLogger{},
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		defined: make(map[string]bool),
	}
}

// SetLogger sets the logger. Call before InitInfo.
func (d *Driver) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// Wake fires when the file changes on disk.
func (d *Driver) Wake() <-chan struct{} {
	return d.wake
}

// InitInfo parses the file, publishes its first section and starts
// watching it.
func (d *Driver) InitInfo(srv *dstate.Server) error {
	entries, err := ParseFile(d.path)
	if err != nil {
		return err
	}
	d.entries = entries

	if err := d.watch(); err != nil {
		// Replay still works; edits are just not picked up early.
		d.logger.Warn("cannot watch definition file", "path", d.path, "error", err)
	}

	d.logger.Info("replaying definition file", "path", d.path, "mode", d.mode, "entries", len(entries))
	d.restart(srv)
	return nil
}

// watch follows the file's directory so editors that replace the file
// by rename are still seen.
func (d *Driver) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(d.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(d.path), err)
	}
	d.watcher = w

	target := filepath.Clean(d.path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				d.changed.Store(true)
				select {
				case d.wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.logger.Warn("definition file watcher error", "error", err)
			}
		}
	}()
	return nil
}

// UpdateInfo re-reads the file after a change and, in loop mode, plays
// the next section once its TIMER has elapsed.
func (d *Driver) UpdateInfo(srv *dstate.Server) error {
	if d.changed.Swap(false) {
		entries, err := ParseFile(d.path)
		if err != nil {
			// Keep the previous contents; the file may be mid-write.
			d.logger.Warn("cannot reload definition file", "path", d.path, "error", err)
			return nil
		}
		d.logger.Info("definition file changed, reloading", "path", d.path)
		d.entries = entries
		d.restart(srv)
		return nil
	}

	if d.mode == ModeLoop && !d.now().Before(d.nextAt) {
		if d.pos >= len(d.entries) {
			d.pos = 0
		}
		d.play(srv)
	}
	return nil
}

func (d *Driver) restart(srv *dstate.Server) {
	d.pos = 0
	if d.mode == ModeOnce {
		for _, e := range d.entries {
			if !e.IsTimer() {
				d.set(srv, e)
			}
		}
		d.pos = len(d.entries)
		return
	}
	d.play(srv)
}

// play applies entries from the current position up to and including the
// next TIMER, which sets when the following section is due.
func (d *Driver) play(srv *dstate.Server) {
	d.nextAt = d.now()
	for d.pos < len(d.entries) {
		e := d.entries[d.pos]
		d.pos++
		if e.IsTimer() {
			d.nextAt = d.now().Add(e.Delay)
			return
		}
		d.set(srv, e)
	}
}

func (d *Driver) set(srv *dstate.Server, e Entry) {
	srv.SetInfo(e.Name, e.Value)
	if !d.defined[strings.ToLower(e.Name)] {
		d.defined[strings.ToLower(e.Name)] = true
		//nolint:errcheck // the variable was just set
		srv.SetFlags(e.Name, "RW")
	}
}

// SetVar publishes value for any variable the file defines.
func (d *Driver) SetVar(srv *dstate.Server, name, value string) error {
	if !d.defined[strings.ToLower(name)] {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	d.logger.Info("setting variable", "var", name, "value", value)
	srv.SetInfo(name, value)
	return nil
}

// InstCmd only logs: there is no hardware to act on.
func (d *Driver) InstCmd(_ *dstate.Server, cmd, extra string) error {
	d.logger.Info("instant command received", "command", cmd, "extra", extra)
	return nil
}

// Shutdown stops the file watcher.
func (d *Driver) Shutdown(*dstate.Server) error {
	if d.watcher == nil {
		return nil
	}
	err := d.watcher.Close()
	d.watcher = nil
	if err != nil && !errors.Is(err, fsnotify.ErrClosed) {
		return err
	}
	return nil
}
