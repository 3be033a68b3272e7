package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/process"
)

// stopWait bounds how long "upsdrvctl stop" waits for a driver to exit.
const stopWait = 15 * time.Second

func newStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [ups...]",
		Short: "Ask running drivers to exit",
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			devices, err := selectDevices(cfg, args)
			if err != nil {
				return err
			}

			var errs []error
			for _, dev := range devices {
				if err := stopDriver(cfg, dev, stopWait, log); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", dev.Name, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

// stopDriver sends SIGTERM to the driver recorded in its pid file and
// waits for the driver to remove the file. A driver that is not running
// is not an error.
func stopDriver(cfg *config.Config, dev config.DeviceConfig, wait time.Duration, log *logging.Logger) error {
	path := pidFile(cfg, dev)
	pid, err := process.SignalPIDFile(path, unix.SIGTERM)
	if errors.Is(err, process.ErrNoPIDFile) {
		log.Info("driver not running", "ups", dev.Name, "pid_file", path)
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("stopping driver", "ups", dev.Name, "pid", pid)

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("driver (pid %d) still running after %v", pid, wait)
}
