// Package history persists upsd events to SQLite.
//
// The Repository writes one row per upsd.Event into the ups_events table
// (see the migrations package) and answers the recent-events queries of
// the HTTP API. Rows older than the configured retention are removed by
// Prune, which upsd runs once an hour.
package history
