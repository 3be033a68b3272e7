package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/process"
)

func newStartCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "start [ups...]",
		Short: "Start drivers and supervise them until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			devices, err := selectDevices(cfg, args)
			if err != nil {
				return err
			}
			return supervise(ctx, cfg, g.path(), devices, log)
		},
	}
}

// supervise starts each driver in turn, waiting for its socket before
// moving on, then keeps them running until ctx ends. A driver that fails
// to start is reported and skipped; the error is returned once every
// driver has been stopped.
func supervise(ctx context.Context, cfg *config.Config, configPath string, devices []config.DeviceConfig, log *logging.Logger) error {
	var (
		managers []*process.Manager
		failed   []error
	)

	for _, dev := range devices {
		m := process.NewManager(managerConfig(cfg, configPath, dev))
		m.SetLogger(log)

		err := m.Start(ctx)
		switch {
		case err == nil:
			log.Info("driver started", "ups", dev.Name, "driver", dev.Driver, "pid", m.PID())
			managers = append(managers, m)
		case errors.Is(err, process.ErrStartTimeout):
			// Still supervised; it may yet come up.
			managers = append(managers, m)
		case ctx.Err() != nil:
			m.Stop() //nolint:errcheck // shutting down
			return stopAll(managers, log)
		default:
			log.Error("driver failed to start", "ups", dev.Name, "driver", dev.Driver, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", dev.Name, err))
		}
	}

	if len(managers) == 0 {
		return errors.Join(failed...)
	}

	eg, ectx := errgroup.WithContext(ctx)
	for _, m := range managers {
		eg.Go(func() error {
			finished := make(chan error, 1)
			go func() { finished <- m.Wait() }()

			select {
			case <-ectx.Done():
				return nil
			case err := <-finished:
				// Supervision ended on its own: clean exit or restarts exhausted.
				stats := m.Stats()
				log.Warn("driver no longer supervised", "ups", stats.Name, "restarts", stats.RestartCount, "error", err)
				return nil
			}
		})
	}
	eg.Wait() //nolint:errcheck // goroutines always return nil

	if err := stopAll(managers, log); err != nil {
		failed = append(failed, err)
	}
	return errors.Join(failed...)
}

// stopAll stops every manager concurrently.
func stopAll(managers []*process.Manager, log *logging.Logger) error {
	var eg errgroup.Group
	for _, m := range managers {
		eg.Go(func() error {
			if err := m.Stop(); err != nil {
				log.Error("stopping driver failed", "ups", m.Stats().Name, "error", err)
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// managerConfig builds the supervisor settings for one device.
func managerConfig(cfg *config.Config, configPath string, dev config.DeviceConfig) process.Config {
	pc := process.DefaultConfig(dev.Name,
		filepath.Join(cfg.Driver.Path, dev.Driver),
		[]string{"-a", dev.Name, "--config", configPath},
	)
	pc.RestartOnFailure = cfg.Driver.RestartOnFailure
	if cfg.Driver.RestartDelay > 0 {
		pc.RestartDelay = config.Seconds(cfg.Driver.RestartDelay)
	}
	pc.MaxRestartAttempts = cfg.Driver.MaxRestartAttempts
	pc.StartTimeout = cfg.GetMaxStartDelay(dev)
	pc.ReadyFunc = process.SocketReady(socketPath(cfg, dev))
	return pc
}

func socketPath(cfg *config.Config, dev config.DeviceConfig) string {
	return filepath.Join(cfg.StatePath, dstate.SocketName(dev.Driver, dev.Name))
}

func pidFile(cfg *config.Config, dev config.DeviceConfig) string {
	return process.PIDFilePath(cfg.StatePath, dstate.SocketName(dev.Driver, dev.Name))
}
