package driver

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/process"
	"github.com/nerrad567/upswatch/internal/wire"
)

// fakeDriver counts calls and records control requests.
type fakeDriver struct {
	mu       sync.Mutex
	updates  int
	fail     bool
	initErr  error
	shutdown bool
	sets     []string
	wake     chan struct{}
}

func (d *fakeDriver) InitInfo(srv *dstate.Server) error {
	if d.initErr != nil {
		return d.initErr
	}
	srv.SetInfo("ups.status", "OL")
	srv.SetInfo("ups.delay.shutdown", "20")
	srv.SetFlags("ups.delay.shutdown", "RW") //nolint:errcheck // variable exists
	srv.AddCmd("beeper.off")
	return nil
}

func (d *fakeDriver) UpdateInfo(srv *dstate.Server) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates++
	if d.fail {
		return errors.New("no response")
	}
	srv.SetInfof("test.updates", "%d", d.updates)
	return nil
}

func (d *fakeDriver) Shutdown(*dstate.Server) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdown = true
	return nil
}

func (d *fakeDriver) SetVar(srv *dstate.Server, name, value string) error {
	d.mu.Lock()
	d.sets = append(d.sets, name+"="+value)
	d.mu.Unlock()
	srv.SetInfo(name, value)
	return nil
}

func (d *fakeDriver) InstCmd(*dstate.Server, string, string) error {
	return ErrUnknownCommand
}

func (d *fakeDriver) Wake() <-chan struct{} { return d.wake }

func (d *fakeDriver) updateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates
}

type runResult struct{ err error }

func startRun(t *testing.T, drv Driver, opts Options) (context.CancelFunc, <-chan runResult, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	finished := make(chan struct{})
	go func() {
		done <- runResult{Run(ctx, drv, opts)}
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})

	sock := filepath.Join(opts.StatePath, dstate.SocketName(opts.Name, opts.Device))
	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	return cancel, done, sock
}

func dump(t *testing.T, sock string) map[string]string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	lines, err := dstate.Dump(ctx, sock)
	require.NoError(t, err)

	vars := make(map[string]string)
	for _, line := range lines {
		args, err := wire.Tokenize(line)
		require.NoError(t, err)
		if len(args) == 3 && args[0] == wire.VerbSetInfo {
			vars[args[1]] = args[2]
		}
		if len(args) == 1 {
			vars[args[0]] = ""
		}
	}
	return vars
}

func TestRun_PublishesDriverParameters(t *testing.T) {
	dir := t.TempDir()
	drv := &fakeDriver{}
	pid := filepath.Join(dir, "dummy-ups-ups1.pid")
	cancel, done, sock := startRun(t, drv, Options{
		Name:         "dummy-ups",
		Version:      "1.2.3",
		Device:       "ups1",
		Port:         "ups1.dev",
		StatePath:    dir,
		PollInterval: time.Second,
		Params:       map[string]string{"mode": "dummy-loop"},
		PIDFile:      pid,
	})

	vars := dump(t, sock)
	assert.Equal(t, "dummy-ups", vars["driver.name"])
	assert.Equal(t, "1.2.3", vars["driver.version"])
	assert.Equal(t, "1", vars["driver.parameter.pollinterval"])
	assert.Equal(t, "ups1.dev", vars["driver.parameter.port"])
	assert.Equal(t, "dummy-loop", vars["driver.parameter.mode"])
	assert.Equal(t, "OL", vars["ups.status"])
	assert.Contains(t, vars, wire.VerbDataOK)

	got, err := process.ReadPIDFile(pid)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	assert.GreaterOrEqual(t, drv.updateCount(), 1, "first update runs before the socket is bound")

	cancel()
	select {
	case r := <-done:
		require.NoError(t, r.err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, drv.shutdown)
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err), "socket removed")
	_, err = os.Stat(pid)
	assert.True(t, os.IsNotExist(err), "pid file removed")
}

func TestRun_SetForwardedToDriver(t *testing.T) {
	drv := &fakeDriver{}
	_, _, sock := startRun(t, drv, Options{
		Name: "dummy-ups", Device: "ups1", Port: "ups1.dev",
		StatePath: t.TempDir(), PollInterval: 20 * time.Millisecond,
	})

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(wire.Set("ups.delay.shutdown", "60")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return dump(t, sock)["ups.delay.shutdown"] == "60"
	}, 3*time.Second, 20*time.Millisecond)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	assert.Equal(t, []string{"ups.delay.shutdown=60"}, drv.sets)
}

func TestRun_UpdateFailureMarksStale(t *testing.T) {
	drv := &fakeDriver{}
	_, _, sock := startRun(t, drv, Options{
		Name: "dummy-ups", Device: "ups1", Port: "ups1.dev",
		StatePath: t.TempDir(), PollInterval: 20 * time.Millisecond,
	})

	drv.mu.Lock()
	drv.fail = true
	drv.mu.Unlock()

	require.Eventually(t, func() bool {
		_, stale := dump(t, sock)[wire.VerbDataStale]
		return stale
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRun_WakeTriggersUpdate(t *testing.T) {
	drv := &fakeDriver{wake: make(chan struct{})}
	startRun(t, drv, Options{
		Name: "dummy-ups", Device: "ups1", Port: "ups1.dev",
		StatePath: t.TempDir(), PollInterval: time.Hour,
	})

	before := drv.updateCount()
	drv.wake <- struct{}{}
	require.Eventually(t, func() bool { return drv.updateCount() > before }, 3*time.Second, 10*time.Millisecond)
}

func TestRun_Errors(t *testing.T) {
	err := Run(context.Background(), &fakeDriver{}, Options{Name: "dummy-ups"})
	assert.ErrorIs(t, err, ErrNoPort)

	boom := errors.New("port busy")
	err = Run(context.Background(), &fakeDriver{initErr: boom}, Options{
		Name: "dummy-ups", Port: "x", StatePath: t.TempDir(),
	})
	assert.ErrorIs(t, err, boom)

	drv := &fakeDriver{}
	err = Run(context.Background(), drv, Options{
		Name: "dummy-ups", Port: "x", StatePath: filepath.Join(t.TempDir(), "missing"),
	})
	var epErr *dstate.EndpointError
	assert.ErrorAs(t, err, &epErr)
	assert.True(t, drv.shutdown, "driver released after socket setup failed")
}

func TestPublishParams_SortedAndRounded(t *testing.T) {
	srv := dstate.New(dstate.Config{StatePath: t.TempDir(), Driver: "dummy-ups"})
	publishParams(srv, Options{
		Name:         "dummy-ups",
		Port:         "/dev/ttyS0",
		PollInterval: 2500 * time.Millisecond,
		Params:       map[string]string{"b": "2", "a": "1"},
	})

	v, ok := srv.GetInfo("driver.parameter.pollinterval")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	v, _ = srv.GetInfo("driver.parameter.a")
	assert.Equal(t, "1", v)
	_, ok = srv.GetInfo("driver.version")
	assert.False(t, ok, "no version published when unset")
}
