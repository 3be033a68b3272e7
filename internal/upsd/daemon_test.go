package upsd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/dstate"
)

func TestDaemon_MirrorsDriverState(t *testing.T) {
	dir := t.TempDir()
	drv := startDriver(t, dir, "ups1", func(s *dstate.Server) {
		freshDriver(s)
		s.SetInfo("ups.id", `rack "A"`)
		s.SetFlags("ups.id", "RW", "STRING") //nolint:errcheck // exists
		s.SetAux("ups.id", "16")             //nolint:errcheck // exists
		s.SetInfo("input.sensitivity", "M")
		s.AddEnum("input.sensitivity", "L") //nolint:errcheck // exists
		s.AddEnum("input.sensitivity", "M") //nolint:errcheck // exists
		s.AddCmd("test.battery.start")
	})

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	rec := &recorder{}
	d.SetNotifier(rec)
	ctx := startDaemon(t, d)

	info := waitFresh(t, ctx, d, "ups1")
	assert.Equal(t, "OL", info.Status)
	assert.True(t, info.DumpDone)
	assert.True(t, info.DataOK)
	assert.Equal(t, []string{"test.battery.start"}, info.Commands)

	byName := map[string]VariableInfo{}
	for _, v := range info.Variables {
		byName[v.Name] = v
	}
	assert.Equal(t, `rack "A"`, byName["ups.id"].Value)
	assert.Equal(t, []string{"RW", "STRING"}, byName["ups.id"].Flags)
	assert.Equal(t, 16, byName["ups.id"].Aux)
	assert.Equal(t, []string{"L", "M"}, byName["input.sensitivity"].Enums)

	t.Run("live updates", func(t *testing.T) {
		drv.do(func(s *dstate.Server) {
			s.SetInfo("battery.charge", "87")
			s.DelInfo("ups.id")
			s.DelCmd("test.battery.start")
			s.AddCmd("load.off")
		})

		require.Eventually(t, func() bool {
			v, err := d.Variable(ctx, "ups1", "battery.charge")
			return err == nil && v.Value == "87"
		}, 3*time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			info, err := d.Device(ctx, "UPS1")
			return err == nil && len(info.Commands) == 1 && info.Commands[0] == "load.off"
		}, 3*time.Second, 10*time.Millisecond)

		_, err := d.Variable(ctx, "ups1", "ups.id")
		assert.ErrorIs(t, err, ErrVarNotSupported)

		_, ok := rec.find(EventVariableDeleted, "ups1")
		assert.True(t, ok)
	})

	t.Run("data stale from driver", func(t *testing.T) {
		drv.do(func(s *dstate.Server) { s.DataStale() })
		require.Eventually(t, func() bool {
			info, err := d.Device(ctx, "ups1")
			return err == nil && info.Stale && info.Connected
		}, 3*time.Second, 10*time.Millisecond)

		drv.do(func(s *dstate.Server) { s.DataOK() })
		waitFresh(t, ctx, d, "ups1")
		assert.GreaterOrEqual(t, rec.count(EventDeviceStale), 1)
		assert.GreaterOrEqual(t, rec.count(EventDeviceOK), 2)
	})
}

func TestDaemon_StaleUntilDataOK(t *testing.T) {
	dir := t.TempDir()
	drv := startDriver(t, dir, "ups1", func(s *dstate.Server) {
		s.SetInfo("ups.status", "OL")
	})

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	ctx := startDaemon(t, d)

	require.Eventually(t, func() bool {
		info, err := d.Device(ctx, "ups1")
		return err == nil && info.DumpDone
	}, 3*time.Second, 10*time.Millisecond)

	info, err := d.Device(ctx, "ups1")
	require.NoError(t, err)
	assert.True(t, info.Stale, "no DATAOK yet")

	drv.do(func(s *dstate.Server) { s.DataOK() })
	waitFresh(t, ctx, d, "ups1")
}

func TestDaemon_DriverRestart(t *testing.T) {
	dir := t.TempDir()
	drv := startDriver(t, dir, "ups1", freshDriver)

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	rec := &recorder{}
	d.SetNotifier(rec)
	ctx := startDaemon(t, d)

	first := waitFresh(t, ctx, d, "ups1")

	drv.stop()
	require.Eventually(t, func() bool {
		info, err := d.Device(ctx, "ups1")
		return err == nil && info.Stale && !info.Connected
	}, 3*time.Second, 10*time.Millisecond)
	_, ok := rec.find(EventDeviceDisconnected, "ups1")
	assert.True(t, ok)

	startDriver(t, dir, "ups1", func(s *dstate.Server) {
		s.SetInfo("ups.status", "OB")
		s.DataOK()
	})

	second := waitFresh(t, ctx, d, "ups1")
	assert.NotEqual(t, first.ConnID, second.ConnID)
	assert.Equal(t, "OB", second.Status)

	_, err := d.Variable(ctx, "ups1", "battery.charge")
	assert.ErrorIs(t, err, ErrVarNotSupported, "mirror is rebuilt from the new dump")
}

func TestDaemon_ReloadRetention(t *testing.T) {
	dir := t.TempDir()
	x := startDriver(t, dir, "x", freshDriver)
	y := startDriver(t, dir, "y", freshDriver)

	d := New(testOptions(dir), []DeviceConfig{testDevice("x"), testDevice("y")})
	rec := &recorder{}
	d.SetNotifier(rec)
	ctx := startDaemon(t, d)

	before := waitFresh(t, ctx, d, "x")
	waitFresh(t, ctx, d, "y")
	require.NoError(t, d.Login(ctx, "y"))

	require.NoError(t, d.Reload(ctx, []DeviceConfig{testDevice("x")}))

	after, err := d.Device(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, before.ConnID, after.ConnID, "retained device keeps its connection")
	assert.True(t, after.Connected)
	assert.False(t, after.Stale)
	assert.NotEmpty(t, after.Variables, "retained device keeps its mirror")

	_, err = d.Device(ctx, "y")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	removed, ok := rec.find(EventDeviceRemoved, "y")
	require.True(t, ok)
	assert.Equal(t, 1, removed.Logins)

	require.Eventually(t, func() bool { return y.listeners() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, x.listeners())

	x.do(func(s *dstate.Server) { s.SetInfo("battery.charge", "42") })
	require.Eventually(t, func() bool {
		v, err := d.Variable(ctx, "x", "battery.charge")
		return err == nil && v.Value == "42"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDaemon_ReloadRedefinedDriver(t *testing.T) {
	dir := t.TempDir()
	startDriver(t, dir, "x", freshDriver)

	alt := dstate.New(dstate.Config{StatePath: dir, Driver: "other-ups", Device: "x"})
	require.NoError(t, alt.Init())
	t.Cleanup(func() { alt.Shutdown() }) //nolint:errcheck // test cleanup

	d := New(testOptions(dir), []DeviceConfig{testDevice("x")})
	ctx := startDaemon(t, d)
	before := waitFresh(t, ctx, d, "x")

	cfg := testDevice("x")
	cfg.Driver = "other-ups"
	require.NoError(t, d.Reload(ctx, []DeviceConfig{cfg}))

	after, err := d.Device(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "other-ups", after.Driver)
	assert.NotEqual(t, before.ConnID, after.ConnID)
}

func TestDaemon_ReloadSkipsIncompleteAndEmpty(t *testing.T) {
	dir := t.TempDir()
	d := New(testOptions(dir), nil)
	ctx := startDaemon(t, d)

	require.NoError(t, d.Reload(ctx, []DeviceConfig{
		{Name: "nodriver", Port: "auto"},
		{Name: "noport", Driver: testDriver},
		testDevice("ok"),
	}))

	devs, err := d.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "ok", devs[0].Name)
	assert.True(t, devs[0].Stale, "no driver running")
	assert.False(t, devs[0].Connected)

	require.NoError(t, d.Reload(ctx, nil))
	devs, err = d.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestDaemon_SetVar(t *testing.T) {
	dir := t.TempDir()
	startDriver(t, dir, "ups1", func(s *dstate.Server) {
		freshDriver(s)
		s.SetInfo("ups.delay.shutdown", "20")
		s.SetFlags("ups.delay.shutdown", "RW") //nolint:errcheck // exists
		s.SetInfo("ups.id", "a")
		s.SetFlags("ups.id", "RW", "STRING") //nolint:errcheck // exists
		s.SetAux("ups.id", "4")              //nolint:errcheck // exists
		s.SetInfo("input.sensitivity", "M")
		s.SetFlags("input.sensitivity", "RW") //nolint:errcheck // exists
		s.AddEnum("input.sensitivity", "L")   //nolint:errcheck // exists
		s.AddEnum("input.sensitivity", "M")   //nolint:errcheck // exists
		s.SetHandlers(dstate.Handlers{
			SetVar: func(name, value string) error {
				s.SetInfo(name, value)
				return nil
			},
		})
	})

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	ctx := startDaemon(t, d)
	waitFresh(t, ctx, d, "ups1")

	tests := []struct {
		name    string
		device  string
		varName string
		value   string
		wantErr error
	}{
		{"unknown device", "nope", "ups.id", "x", ErrUnknownDevice},
		{"unknown variable", "ups1", "ups.nothing", "x", ErrVarNotSupported},
		{"read only", "ups1", "battery.charge", "50", ErrReadOnly},
		{"too long", "ups1", "ups.id", "abcde", ErrTooLong},
		{"not an enum", "ups1", "input.sensitivity", "X", ErrInvalidValue},
		{"line break", "ups1", "ups.delay.shutdown", "1\nINSTCMD load.off\nx", ErrInvalidValue},
		{"carriage return", "ups1", "ups.delay.shutdown", "1\r", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SetVar(ctx, tt.device, tt.varName, tt.value)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.NoError(t, d.SetVar(ctx, "ups1", "ups.delay.shutdown", "60"))
	require.NoError(t, d.SetVar(ctx, "ups1", "ups.id", "b c"))
	require.NoError(t, d.SetVar(ctx, "ups1", "input.sensitivity", "L"))

	require.Eventually(t, func() bool {
		a, errA := d.Variable(ctx, "ups1", "ups.delay.shutdown")
		b, errB := d.Variable(ctx, "ups1", "ups.id")
		c, errC := d.Variable(ctx, "ups1", "input.sensitivity")
		return errA == nil && errB == nil && errC == nil &&
			a.Value == "60" && b.Value == "b c" && c.Value == "L"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDaemon_InstCmd(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 1)
	startDriver(t, dir, "ups1", func(s *dstate.Server) {
		freshDriver(s)
		s.AddCmd("test.battery.start")
		s.SetHandlers(dstate.Handlers{
			InstCmd: func(cmd, extra string) error {
				got <- cmd + "|" + extra
				return nil
			},
		})
	})

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	ctx := startDaemon(t, d)
	waitFresh(t, ctx, d, "ups1")

	assert.ErrorIs(t, d.InstCmd(ctx, "ups1", "load.off", ""), ErrCmdNotSupported)
	assert.ErrorIs(t, d.InstCmd(ctx, "ups1", "test.battery.start", "x\nINSTCMD load.off"), ErrInvalidValue)
	require.NoError(t, d.InstCmd(ctx, "ups1", "TEST.BATTERY.START", "deep"))

	select {
	case v := <-got:
		assert.Equal(t, "TEST.BATTERY.START|deep", v)
	case <-time.After(3 * time.Second):
		t.Fatal("driver never received INSTCMD")
	}
}

func TestDaemon_RequestsRejectedWhileStale(t *testing.T) {
	dir := t.TempDir()
	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	ctx := startDaemon(t, d)

	assert.ErrorIs(t, d.InstCmd(ctx, "ups1", "load.off", ""), ErrDriverNotConnected)
	assert.ErrorIs(t, d.SetVar(ctx, "ups1", "ups.id", "x"), ErrDriverNotConnected)
}

func TestDaemon_FSD(t *testing.T) {
	dir := t.TempDir()
	startDriver(t, dir, "ups1", freshDriver)

	d := New(testOptions(dir), []DeviceConfig{testDevice("ups1")})
	rec := &recorder{}
	d.SetNotifier(rec)
	ctx := startDaemon(t, d)
	waitFresh(t, ctx, d, "ups1")

	require.NoError(t, d.SetFSD(ctx, "ups1", "admin"))
	require.NoError(t, d.SetFSD(ctx, "ups1", "admin"))
	assert.ErrorIs(t, d.SetFSD(ctx, "nope", "admin"), ErrUnknownDevice)

	info, err := d.Device(ctx, "ups1")
	require.NoError(t, err)
	assert.True(t, info.FSD)
	assert.Equal(t, "FSD OL", info.Status)
	assert.Equal(t, 1, rec.count(EventForcedShutdown))
}

func TestDaemon_Discover(t *testing.T) {
	dir := t.TempDir()
	startDriver(t, dir, "found", freshDriver)
	startDriver(t, dir, "", freshDriver)

	found, err := Discover(dir, testDriver)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, Discovered{Socket: "dummy-ups", Driver: testDriver}, found[0])
	assert.Equal(t, Discovered{Socket: "dummy-ups-found", Driver: testDriver, Device: "found"}, found[1])

	unnamed := found[0].DeviceConfig()
	assert.Equal(t, testDriver, unnamed.Name)
	assert.Equal(t, "dummy-ups", unnamed.SocketName())

	opts := testOptions(dir)
	opts.Discover = true
	d := New(opts, nil)
	ctx := startDaemon(t, d)

	info := waitFresh(t, ctx, d, "found")
	assert.Equal(t, "discovered", info.Desc)
	waitFresh(t, ctx, d, testDriver)
}

func TestDaemon_RequestsAfterStop(t *testing.T) {
	d := New(testOptions(t.TempDir()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		d.Run(ctx) //nolint:errcheck // returns nil on cancel
	}()

	_, err := d.Devices(context.Background())
	require.NoError(t, err)

	cancel()
	<-exited

	_, err = d.Devices(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestDaemon_Login(t *testing.T) {
	d := New(testOptions(t.TempDir()), []DeviceConfig{testDevice("ups1")})
	ctx := startDaemon(t, d)

	require.NoError(t, d.Login(ctx, "ups1"))
	require.NoError(t, d.Login(ctx, "ups1"))
	require.NoError(t, d.Logout(ctx, "ups1"))
	require.NoError(t, d.Logout(ctx, "gone"))
	assert.ErrorIs(t, d.Login(ctx, "gone"), ErrUnknownDevice)

	info, err := d.Device(ctx, "ups1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Logins)
}
