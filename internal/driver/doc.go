// Package driver runs the main loop shared by every UPS driver.
//
// A driver implements Driver and hands it to Run, which binds the state
// socket, publishes the driver.* variables and then alternates UpdateInfo
// with dstate.Server.Poll until its context ends:
//
//	err := driver.Run(ctx, dummy.New(port), driver.Options{
//	    Name:         "dummy-ups",
//	    Version:      version,
//	    Device:       "ups1",
//	    Port:         "ups1.dev",
//	    StatePath:    "/var/run/nut",
//	    PollInterval: 2 * time.Second,
//	})
//
// Drivers that handle SET or INSTCMD also implement Controller; drivers
// with their own wake-up source (a file watcher, a serial line) implement
// Waker.
package driver
