// dummy-ups serves UPS data replayed from a definition file.
//
// The device named by -a is looked up in config.yaml; its port is the
// definition file, relative to the config directory unless absolute.
// A ".seq" file loops through its TIMER sections, anything else is
// applied once and re-applied whenever the file changes.
//
//	dummy-ups -a ups1 --config /etc/upswatch/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/upswatch/internal/driver"
	"github.com/nerrad567/upswatch/internal/driver/dummy"
	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/process"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	defaultConfigPath = "/etc/upswatch/config.yaml"
	configPathEnv     = "UPSWATCH_CONFIG"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		upsName    string
		debug      bool
	)

	root := &cobra.Command{
		Use:           dummy.DriverName + " -a <ups>",
		Short:         "Simulated UPS driver fed from a definition file",
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if configPath == "" {
				configPath = os.Getenv(configPathEnv)
			}
			if configPath == "" {
				configPath = defaultConfigPath
			}
			return run(ctx, configPath, upsName, debug)
		},
	}
	root.Flags().StringVarP(&upsName, "ups", "a", "", "UPS name from the devices section (required)")
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().BoolVarP(&debug, "debug", "D", false, "log at debug level")
	root.MarkFlagRequired("ups") //nolint:errcheck // flag is defined above
	return root
}

func run(ctx context.Context, configPath, upsName string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	opts, mode, err := driverOptions(cfg, configPath, upsName)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, dummy.DriverName, version).With("ups", opts.Device)
	opts.Logger = log

	drv := dummy.New(opts.Port, mode)
	drv.SetLogger(log)

	return driver.Run(ctx, drv, opts)
}

// driverOptions builds driver.Options for the named device.
func driverOptions(cfg *config.Config, configPath, upsName string) (driver.Options, dummy.Mode, error) {
	dev, ok := cfg.Device(upsName)
	if !ok {
		return driver.Options{}, "", fmt.Errorf("ups %q is not defined in %s", upsName, configPath)
	}
	if dev.Driver != dummy.DriverName {
		return driver.Options{}, "", fmt.Errorf("ups %q uses driver %s, not %s", dev.Name, dev.Driver, dummy.DriverName)
	}

	port := config.ResolvePort(configPath, dev.Port)
	mode := dummy.Mode(dev.Options["mode"])
	if mode == "" {
		mode = dummy.ModeFor(port)
	}
	if mode != dummy.ModeOnce && mode != dummy.ModeLoop {
		return driver.Options{}, "", fmt.Errorf("ups %q: unknown mode %q", dev.Name, mode)
	}

	return driver.Options{
		Name:         dummy.DriverName,
		Version:      version,
		Device:       dev.Name,
		Port:         port,
		StatePath:    cfg.StatePath,
		PollInterval: cfg.GetPollInterval(dev),
		Params:       dev.Options,
		PIDFile:      process.PIDFilePath(cfg.StatePath, dstate.SocketName(dummy.DriverName, dev.Name)),
	}, mode, nil
}
