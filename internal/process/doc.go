// Package process supervises UPS driver processes.
//
// upsdrvctl uses a Manager per configured device. Each driver runs in its
// own process group so stopping it also stops anything it spawned. A driver
// that exits non-zero is restarted with exponential backoff; a clean exit
// (for example after "upsdrvctl stop" signalled it through its pid file)
// ends supervision.
//
// Start blocks until the driver is ready, normally until its state socket
// exists, or until StartTimeout elapses:
//
//	mgr := process.NewManager(process.Config{
//	    Name:         "ups1",
//	    Binary:       "/usr/local/bin/dummy-ups",
//	    Args:         []string{"-a", "ups1"},
//	    ReadyFunc:    process.SocketReady("/var/run/nut/dummy-ups-ups1"),
//	    StartTimeout: 45 * time.Second,
//	})
//	if err := mgr.Start(ctx); err != nil && !errors.Is(err, process.ErrStartTimeout) {
//	    return err
//	}
//	defer mgr.Stop()
//
// Pid files follow the state socket naming, <driver>-<device>.pid in the
// state directory. Drivers write their own; upsdrvctl stop reads them.
package process
