package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/process"
)

// dumpTimeout bounds one "upsdrvctl dump".
const dumpTimeout = 5 * time.Second

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured devices and their driver state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			return writeList(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeList(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UPS\tDRIVER\tPORT\tSOCKET\tPID")
	for _, dev := range cfg.Devices {
		sock := "down"
		if process.SocketReady(socketPath(cfg, dev))() == nil {
			sock = "up"
		}
		pid := "-"
		if n, err := process.ReadPIDFile(pidFile(cfg, dev)); err == nil {
			pid = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", dev.Name, dev.Driver, dev.Port, sock, pid)
	}
	return tw.Flush()
}

func newDumpCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <ups>",
		Short: "Print the protocol dump of a running driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			devices, err := selectDevices(cfg, args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), dumpTimeout)
			defer cancel()
			return writeDump(ctx, cmd.OutOrStdout(), socketPath(cfg, devices[0]))
		},
	}
}

func writeDump(ctx context.Context, w io.Writer, sock string) error {
	lines, err := dstate.Dump(ctx, sock)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}
