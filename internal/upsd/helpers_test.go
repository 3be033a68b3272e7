package upsd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/dstate"
)

const testDriver = "dummy-ups"

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) find(kind EventKind, device string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Device == device {
			return ev, true
		}
	}
	return Event{}, false
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// fakeDriver runs a real state server on its own goroutine, the way a
// driver process would.
type fakeDriver struct {
	ops     chan func(*dstate.Server)
	stopped chan struct{}
	once    sync.Once
	quit    chan struct{}
}

func startDriver(t *testing.T, statePath, device string, setup func(*dstate.Server)) *fakeDriver {
	t.Helper()

	srv := dstate.New(dstate.Config{StatePath: statePath, Driver: testDriver, Device: device})
	require.NoError(t, srv.Init())

	f := &fakeDriver{
		ops:     make(chan func(*dstate.Server)),
		stopped: make(chan struct{}),
		quit:    make(chan struct{}),
	}

	go func() {
		defer close(f.stopped)
		if setup != nil {
			setup(srv)
		}
		for {
			select {
			case <-f.quit:
				srv.Shutdown() //nolint:errcheck // test driver
				return
			case op := <-f.ops:
				op(srv)
			default:
			}
			srv.Poll(5*time.Millisecond, nil)
		}
	}()

	t.Cleanup(f.stop)
	return f
}

// do runs fn on the driver goroutine.
func (f *fakeDriver) do(fn func(*dstate.Server)) {
	done := make(chan struct{})
	f.ops <- func(s *dstate.Server) {
		fn(s)
		close(done)
	}
	<-done
}

func (f *fakeDriver) listeners() int {
	var n int
	f.do(func(s *dstate.Server) { n = s.ListenerCount() })
	return n
}

func (f *fakeDriver) stop() {
	f.once.Do(func() { close(f.quit) })
	<-f.stopped
}

func testOptions(statePath string) Options {
	return Options{
		StatePath:         statePath,
		MaxAge:            2 * time.Second,
		PingInterval:      100 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
		CheckInterval:     10 * time.Millisecond,
		KnownDrivers:      []string{testDriver},
	}
}

func testDevice(name string) DeviceConfig {
	return DeviceConfig{Name: name, Driver: testDriver, Port: name + ".dev"}
}

// startDaemon runs d until the test ends.
func startDaemon(t *testing.T, d *Daemon) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		d.Run(ctx) //nolint:errcheck // returns nil on cancel
	}()
	t.Cleanup(func() {
		cancel()
		<-exited
	})
	return ctx
}

// waitFresh waits until a device is connected with fresh data.
func waitFresh(t *testing.T, ctx context.Context, d *Daemon, name string) DeviceInfo {
	t.Helper()

	var info DeviceInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = d.Device(ctx, name)
		return err == nil && info.Connected && !info.Stale
	}, 3*time.Second, 10*time.Millisecond, "device %s never became fresh", name)
	return info
}

// freshDriver publishes a minimal on-line UPS.
func freshDriver(s *dstate.Server) {
	s.SetInfo("ups.status", "OL")
	s.SetInfo("battery.charge", "100")
	s.DataOK()
}
