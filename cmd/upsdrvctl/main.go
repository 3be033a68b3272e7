// upsdrvctl starts, stops and inspects the UPS drivers declared in
// config.yaml.
//
//	upsdrvctl start           supervise every driver until SIGTERM
//	upsdrvctl start ups1      supervise one driver
//	upsdrvctl stop [ups]      ask running drivers to exit via their pid files
//	upsdrvctl list            show each device and whether its socket is up
//	upsdrvctl dump ups1       print everything a driver is publishing
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
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

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "upsdrvctl",
		Short:         "UPS driver controller",
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().BoolVarP(&g.debug, "debug", "D", false, "log at debug level")

	root.AddCommand(
		newStartCmd(g),
		newStopCmd(g),
		newListCmd(g),
		newDumpCmd(g),
	)
	return root
}

// path returns the flag value, then UPSWATCH_CONFIG, then the default.
func (g *globals) path() string {
	if g.configPath != "" {
		return g.configPath
	}
	if p := os.Getenv(configPathEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

// load reads the configuration and builds the logger.
func (g *globals) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(g.path())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if g.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, logging.New(cfg.Logging, "upsdrvctl", version), nil
}

// selectDevices returns the devices named in args, or all of them.
func selectDevices(cfg *config.Config, args []string) ([]config.DeviceConfig, error) {
	if len(args) == 0 {
		if len(cfg.Devices) == 0 {
			return nil, fmt.Errorf("no devices are configured")
		}
		return cfg.Devices, nil
	}
	out := make([]config.DeviceConfig, 0, len(args))
	for _, name := range args {
		dev, ok := cfg.Device(name)
		if !ok {
			return nil, fmt.Errorf("ups %q is not defined", name)
		}
		out = append(out, dev)
	}
	return out, nil
}
