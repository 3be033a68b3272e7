package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 500 * time.Millisecond

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Watcher reloads the configuration file on SIGHUP and, optionally, when
// the file changes. A file that fails to load or validate is logged and
// ignored; the running configuration stays in force.
type Watcher struct {
	path      string
	watchFile bool
	logger    Logger
	trigger   chan struct{}
}

// NewWatcher creates a watcher for path. watchFile enables fsnotify in
// addition to SIGHUP.
func NewWatcher(path string, watchFile bool) *Watcher {
	return &Watcher{
		path:      path,
		watchFile: watchFile,
		logger:    noopLogger{},
		trigger:   make(chan struct{}, 1),
	}
}

// SetLogger sets the logger. Call before Run.
func (w *Watcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	w.logger = logger
}

// Trigger requests a reload, as SIGHUP does.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run calls apply with each successfully reloaded configuration until ctx
// ends. apply runs on Run's goroutine.
func (w *Watcher) Run(ctx context.Context, apply func(*Config)) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var fileEvents <-chan fsnotify.Event
	var fileErrors <-chan error
	if w.watchFile {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating config watcher: %w", err)
		}
		defer fw.Close()
		// The directory, not the file: editors replace files by rename.
		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
		}
		fileEvents, fileErrors = fw.Events, fw.Errors
	}

	target := filepath.Clean(w.path)
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			w.logger.Info("SIGHUP received, reloading configuration", "path", w.path)
			w.reload(apply)
		case <-w.trigger:
			w.reload(apply)
		case ev, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			if filepath.Clean(ev.Name) == target && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-fileErrors:
			if !ok {
				fileErrors = nil
				continue
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-debounce.C:
			w.logger.Info("configuration file changed, reloading", "path", w.path)
			w.reload(apply)
		}
	}
}

func (w *Watcher) reload(apply func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("configuration reload failed, keeping current settings", "path", w.path, "error", err)
		return
	}
	apply(cfg)
}
