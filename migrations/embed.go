// Package migrations embeds the SQLite schema for upsd's event history.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
