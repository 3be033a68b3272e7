// Package state holds the variable tree and instant-command list that a UPS
// driver publishes and that upsd mirrors.
//
// A Store maps case-insensitive variable names to values. Each Variable
// keeps the raw value as set, a wire-escaped display copy, a flag set
// (RW, STRING), an auxiliary integer and an ordered list of enumerated
// values. Commands is the sorted set of instant commands.
//
// Neither type performs I/O or locking. Each Store is owned by exactly one
// goroutine: the driver's main loop on the driver side, the daemon's owner
// loop on the upsd side.
//
// # Value comparison
//
// Set compares the new value with the stored one case-insensitively. A value
// that differs only in case is reported Unchanged and the stored casing is
// kept. Drivers polling hardware that alternates between "ON" and "On" would
// otherwise flood every listener with redundant updates.
package state
