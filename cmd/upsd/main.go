// upsd is the UPS information server.
//
// It connects to every configured driver's state socket, mirrors the
// published variables, and serves them over HTTP and WebSocket. Changes
// are fanned out to the optional MQTT, InfluxDB and SQLite outputs.
//
// Configuration is read from --config, the UPSWATCH_CONFIG environment
// variable, or /etc/upswatch/config.yaml, in that order.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
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
		debug      bool
	)

	root := &cobra.Command{
		Use:           "upsd",
		Short:         "UPS information server",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, getConfigPath(configPath), debug)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().BoolVarP(&debug, "debug", "D", false, "log at debug level")

	root.AddCommand(newHashPasswordCmd())
	return root
}

// getConfigPath returns the flag value, then UPSWATCH_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
