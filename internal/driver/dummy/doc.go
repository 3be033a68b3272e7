// Package dummy implements dummy-ups, a driver that replays a file instead
// of talking to hardware.
//
// A definition file holds one variable per line:
//
//	# Rack UPS on mains
//	ups.status: OL
//	battery.charge: 100
//	ups.mfr: "Acme Power"
//
// A ".seq" file is a sequence: TIMER <seconds> lines pause the replay,
// and the file loops when it reaches the end.
//
//	ups.status: OL
//	TIMER 30
//	ups.status: OB DISCHRG
//	battery.charge: 40
//	TIMER 30
//
// Any other file (normally ".dev") is applied once and re-applied whenever
// it changes on disk. Every variable the file defines is writable; SET
// simply publishes the new value until the file next sets it.
package dummy
