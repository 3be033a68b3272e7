package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	// readyPollInterval is how often ReadyFunc is retried during Start.
	readyPollInterval = 100 * time.Millisecond

	// maxOutputLine flushes unterminated driver output.
	maxOutputLine = 4096
)

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name identifies the process in logs, normally the UPS name.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// RestartOnFailure restarts the process when it exits non-zero.
	RestartOnFailure bool

	// RestartDelay is the first restart delay. It doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the backoff and the
	// attempt counter to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// ReadyFunc reports whether the process has finished starting. If nil,
	// the process is ready as soon as it is spawned.
	ReadyFunc func() error

	// StartTimeout bounds how long Start waits for ReadyFunc.
	StartTimeout time.Duration

	// OnExit is called after every exit with the exit error (nil for a
	// clean exit).
	OnExit func(err error)
}

// DefaultConfig returns a Config with the driver defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartDelay:    5 * time.Minute,
		StableThreshold:    2 * time.Minute,
		MaxRestartAttempts: 10,
		GracefulTimeout:    10 * time.Second,
		StartTimeout:       45 * time.Second,
	}
}

// Logger defines the logging interface for the process manager.
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

// Manager supervises one driver process.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	exited        chan struct{}
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a manager, filling zero durations with defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = def.StartTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start spawns the process, begins supervising it and waits for it to
// become ready.
//
// Returns:
//   - ErrAlreadyRunning if already supervising
//   - ErrStartTimeout if ReadyFunc did not succeed in StartTimeout; the
//     process stays up and supervised
//   - an error if the process could not be spawned or exited before ready
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)

	return m.waitReady(ctx)
}

// waitReady polls ReadyFunc until it succeeds, the process exits, or the
// start timer elapses.
func (m *Manager) waitReady(ctx context.Context) error {
	if m.config.ReadyFunc == nil {
		return nil
	}

	m.mu.RLock()
	exited := m.exited
	m.mu.RUnlock()

	deadline := time.NewTimer(m.config.StartTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if err := m.config.ReadyFunc(); err == nil {
			m.logger.Debug("process ready", "name", m.config.Name)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return fmt.Errorf("%s exited during startup: %w", m.config.Name, m.LastError())
		case <-deadline.C:
			m.logger.Warn("startup timer elapsed, continuing", "name", m.config.Name, "timeout", m.config.StartTimeout)
			return fmt.Errorf("%w: %s after %v", ErrStartTimeout, m.config.Name, m.config.StartTimeout)
		case <-ticker.C:
		}
	}
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting driver",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from driver.path in the config file
	// Own process group so Stop reaches the driver's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
	cmd.WaitDelay = m.config.GracefulTimeout

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	cmd.Stdout = &lineWriter{log: m.outputLogger("stdout")}
	cmd.Stderr = &lineWriter{log: m.outputLogger("stderr")}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	exited := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.exited = exited
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("driver started", "name", m.config.Name, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) outputLogger(stream string) func(string) {
	return func(line string) {
		m.logger.Info("driver output", "name", m.config.Name, "stream", stream, "line", line)
	}
}

// lineWriter relays a child's output one line at a time. exec.Cmd copies
// into it from its own goroutine and Wait waits for the copy to finish.
type lineWriter struct {
	log func(string)
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimRight(string(w.buf[:i]), "\r"); line != "" {
			w.log(line)
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxOutputLine {
		w.log(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// monitor waits for each exit and restarts with backoff.
func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)

	delay := m.config.RestartDelay
	for {
		m.mu.RLock()
		cmd, exited, started, stop := m.cmd, m.exited, m.startTime, m.stop
		m.mu.RUnlock()

		err := cmd.Wait()
		ran := time.Since(started)

		m.mu.Lock()
		m.lastError = err
		stopRequested := m.stopRequested
		if err == nil || stopRequested {
			m.status = StatusStopped
		} else {
			m.status = StatusFailed
		}
		m.mu.Unlock()
		close(exited)

		if m.config.OnExit != nil {
			m.config.OnExit(err)
		}

		switch {
		case stopRequested:
			m.logger.Info("driver stopped as requested", "name", m.config.Name)
			return
		case err == nil:
			m.logger.Info("driver exited cleanly", "name", m.config.Name)
			return
		case ctx.Err() != nil:
			return
		}

		m.logger.Warn("driver exited unexpectedly", "name", m.config.Name, "error", err, "ran", ran.Round(time.Millisecond))

		if !m.config.RestartOnFailure {
			return
		}

		m.mu.Lock()
		if ran >= m.config.StableThreshold {
			m.restartCount = 0
			delay = m.config.RestartDelay
		}
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		m.logger.Info("restarting driver", "name", m.config.Name, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-stop:
		case <-time.After(delay):
		}
		delay = min(delay*2, m.config.MaxRestartDelay)

		m.mu.RLock()
		stopRequested = m.stopRequested
		m.mu.RUnlock()
		if stopRequested {
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return
		}

		for {
			err := m.startProcess(ctx)
			if err == nil {
				break
			}
			m.logger.Error("failed to restart driver", "name", m.config.Name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-stop:
				m.mu.Lock()
				m.status = StatusStopped
				m.mu.Unlock()
				return
			case <-time.After(delay):
			}
		}
	}
}

// Stop sends SIGTERM to the process group, then SIGKILL after
// GracefulTimeout, and waits for supervision to end.
func (m *Manager) Stop() error {
	m.mu.Lock()
	done := m.done
	if m.status != StatusRunning && m.status != StatusStarting && m.status != StatusFailed {
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	if !m.stopRequested {
		m.stopRequested = true
		close(m.stop)
	}
	cmd := m.cmd
	running := m.status == StatusRunning
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		// Between restarts; closing stop woke the monitor.
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping driver", "name", m.config.Name, "pid", pid)

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	}

	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Wait blocks until supervision ends: a clean exit, Stop, or restarts
// exhausted. It returns the last exit error.
func (m *Manager) Wait() error {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	if done != nil {
		<-done
	}
	return m.LastError()
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns consecutive restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the current run has lasted, 0 if not running.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if never started.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time view of a managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
