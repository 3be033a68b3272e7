package driver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/process"
)

// DefaultPollInterval applies when Options.PollInterval is zero.
const DefaultPollInterval = 2 * time.Second

// Driver talks to one UPS and publishes its state through srv. All
// methods are called from Run's goroutine.
type Driver interface {
	// InitInfo publishes the initial variables and commands.
	InitInfo(srv *dstate.Server) error

	// UpdateInfo refreshes the published state. An error marks the data
	// stale until the next successful update.
	UpdateInfo(srv *dstate.Server) error

	// Shutdown releases the hardware when Run is leaving.
	Shutdown(srv *dstate.Server) error
}

// Controller is implemented by drivers accepting SET and INSTCMD.
type Controller interface {
	SetVar(srv *dstate.Server, name, value string) error
	InstCmd(srv *dstate.Server, cmd, extra string) error
}

// Waker is implemented by drivers with their own wake-up source. A value
// on the channel ends the current poll early.
type Waker interface {
	Wake() <-chan struct{}
}

// Options configure Run.
type Options struct {
	// Name is the driver program name; it names the state socket.
	Name    string
	Version string

	// Device is the UPS name from the configuration.
	Device string

	// Port is the driver-specific device path or file.
	Port string

	StatePath    string
	PollInterval time.Duration

	// Params are published as driver.parameter.<key>.
	Params map[string]string

	// PIDFile is written after the socket is bound and removed on exit.
	// Empty disables it.
	PIDFile string

	Logger dstate.Logger
}

// Run drives drv until ctx ends.
//
// Returns:
//   - ErrNoPort if opts.Port is empty
//   - the InitInfo error, wrapped
//   - a *dstate.EndpointError if the state socket cannot be bound
//   - nil after a clean shutdown
func Run(ctx context.Context, drv Driver, opts Options) error {
	if opts.Port == "" {
		return ErrNoPort
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}

	srv := dstate.New(dstate.Config{
		StatePath: opts.StatePath,
		Driver:    opts.Name,
		Device:    opts.Device,
	})
	srv.SetLogger(log)

	if c, ok := drv.(Controller); ok {
		srv.SetHandlers(dstate.Handlers{
			SetVar:  func(name, value string) error { return c.SetVar(srv, name, value) },
			InstCmd: func(cmd, extra string) error { return c.InstCmd(srv, cmd, extra) },
		})
	}

	if err := drv.InitInfo(srv); err != nil {
		return fmt.Errorf("initialising %s on %s: %w", opts.Name, opts.Port, err)
	}
	update(drv, srv, log)

	if err := srv.Init(); err != nil {
		if serr := drv.Shutdown(srv); serr != nil {
			return errors.Join(err, fmt.Errorf("driver shutdown: %w", serr))
		}
		return err
	}
	publishParams(srv, opts)

	if opts.PIDFile != "" {
		if err := process.WritePIDFile(opts.PIDFile); err != nil {
			log.Warn("cannot write pid file", "error", err)
		} else {
			defer func() {
				if err := process.RemovePIDFile(opts.PIDFile); err != nil {
					log.Warn("cannot remove pid file", "error", err)
				}
			}()
		}
	}

	log.Info("driver running",
		"driver", opts.Name,
		"device", opts.Device,
		"socket", srv.SocketPath(),
		"poll_interval", opts.PollInterval,
	)

	wake := mergeWake(ctx, drv)
	for {
		srv.Poll(opts.PollInterval, wake)
		if ctx.Err() != nil {
			break
		}
		update(drv, srv, log)
	}

	log.Info("signal received, shutting down", "driver", opts.Name, "device", opts.Device)
	var errs []error
	if err := drv.Shutdown(srv); err != nil {
		errs = append(errs, fmt.Errorf("driver shutdown: %w", err))
	}
	if err := srv.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func update(drv Driver, srv *dstate.Server, log dstate.Logger) {
	if err := drv.UpdateInfo(srv); err != nil {
		if !srv.IsStale() {
			log.Warn("update failed, data is stale", "error", err)
		}
		srv.DataStale()
		return
	}
	srv.DataOK()
}

// publishParams sets the driver.* variables every driver carries.
func publishParams(srv *dstate.Server, opts Options) {
	srv.SetInfo("driver.name", opts.Name)
	if opts.Version != "" {
		srv.SetInfo("driver.version", opts.Version)
	}
	srv.SetInfof("driver.parameter.pollinterval", "%d", int(opts.PollInterval/time.Second))
	srv.SetInfo("driver.parameter.port", opts.Port)
	for _, k := range slices.Sorted(maps.Keys(opts.Params)) {
		srv.SetInfo("driver.parameter."+k, opts.Params[k])
	}
}

// mergeWake returns a channel that fires when the driver's Waker fires or
// when ctx ends, so a shutdown never waits out a full poll interval.
func mergeWake(ctx context.Context, drv Driver) <-chan struct{} {
	var extra <-chan struct{}
	if w, ok := drv.(Waker); ok {
		extra = w.Wake()
	}

	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(out)
				return
			case _, ok := <-extra:
				if !ok {
					extra = nil
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
