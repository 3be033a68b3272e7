package dstate

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/nerrad567/upswatch/internal/wire"
)

// Dump connects to the state socket at path as a listener, requests a
// full dump and returns every line received up to and including DUMPDONE.
// Lines are returned as sent, without the trailing newline.
func Dump(ctx context.Context, path string) ([]string, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer nc.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := nc.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	if _, err := io.WriteString(nc, wire.DumpAll); err != nil {
		return nil, fmt.Errorf("sending DUMPALL: %w", err)
	}

	r := wire.NewReader(nc, 0)
	var lines []string
	for {
		line, err := r.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return lines, ctx.Err()
			}
			return lines, fmt.Errorf("%w: %w", ErrDumpIncomplete, err)
		}
		lines = append(lines, line)
		if strings.TrimSpace(line) == wire.VerbDumpDone {
			return lines, nil
		}
	}
}
