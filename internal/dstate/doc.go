// Package dstate is the driver side of the state socket protocol.
//
// A Server owns one device's variable store and command list, binds a Unix
// socket named after the driver and device under the state path, and
// streams every change to each connected listener (normally upsd).
//
// # Architecture
//
//	┌────────────────────────────── driver process ─────────────────────────────┐
//	│                                                                            │
//	│   driver main loop ──SetInfo/AddCmd/...──▶ Server ──broadcast──▶ conns     │
//	│          │                                   ▲                             │
//	│          └──────────── Poll(timeout, extra) ─┘                             │
//	│                                              ▲                             │
//	│                         accept goroutine ────┤  events channel             │
//	│                         reader goroutines ───┘                             │
//	└────────────────────────────────────────────────────────────────────────────┘
//
// The accept goroutine and the per-connection reader goroutines never touch
// the store or write to a socket. They queue events which Poll applies on
// the caller's goroutine, so every mutation, broadcast and disconnect
// happens in one place and in one order.
//
// # Delivery
//
// Each message is written to each listener with a single non-blocking
// write. A listener that cannot take the whole message at once is
// disconnected on the spot; healthy listeners are unaffected.
//
// # Usage
//
//	srv := dstate.New(dstate.Config{StatePath: "/var/run/nut", Driver: "dummy-ups", Device: "ups1"})
//	srv.SetLogger(log)
//	if err := srv.Init(); err != nil {
//	    var epErr *dstate.EndpointError
//	    if errors.As(err, &epErr) {
//	        fmt.Fprint(os.Stderr, epErr.Guidance())
//	    }
//	    os.Exit(1)
//	}
//	defer srv.Shutdown()
//
//	for ctx.Err() == nil {
//	    srv.SetInfo("battery.charge", "100")
//	    srv.DataOK()
//	    srv.Poll(2*time.Second, nil)
//	}
package dstate
