package dummy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/dstate"
)

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(`
# comment line
ups.status: OL
ups.mfr: "Acme # Power"   # trailing comment
battery.charge:100
ups.model: Smart UPS 1500

TIMER 2.5
ups.status: "OB DISCHRG"
`))
	require.NoError(t, err)

	want := []Entry{
		{Name: "ups.status", Value: "OL", Line: 3},
		{Name: "ups.mfr", Value: "Acme # Power", Line: 4},
		{Name: "battery.charge", Value: "100", Line: 5},
		{Name: "ups.model", Value: "Smart UPS 1500", Line: 6},
		{Delay: 2500 * time.Millisecond, Line: 8},
		{Name: "ups.status", Value: "OB DISCHRG", Line: 9},
	}
	assert.Equal(t, want, entries)
	assert.True(t, entries[4].IsTimer())
	assert.False(t, entries[0].IsTimer())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing colon", "ups.status OL", "line 1"},
		{"empty name", ": OL", "expected"},
		{"unterminated quote", `ups.mfr: "Acme`, "line 1"},
		{"timer without value", "ups.status: OL\nTIMER", "line 2: TIMER needs one argument"},
		{"bad timer", "TIMER soon", "bad TIMER value"},
		{"negative timer", "TIMER -1", "bad TIMER value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrSyntax)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeLoop, ModeFor("/etc/nut/evening.SEQ"))
	assert.Equal(t, ModeOnce, ModeFor("ups1.dev"))
	assert.Equal(t, ModeOnce, ModeFor("noext"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newServer(t *testing.T) *dstate.Server {
	t.Helper()
	return dstate.New(dstate.Config{StatePath: t.TempDir(), Driver: DriverName, Device: "test"})
}

func value(t *testing.T, srv *dstate.Server, name string) string {
	t.Helper()
	v, ok := srv.GetInfo(name)
	require.True(t, ok, "%s not published", name)
	return v
}

func TestDriver_OnceModeAppliesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups1.dev")
	writeFile(t, path, "ups.status: OL\nTIMER 60\nups.status: OB\nbattery.charge: 80\n")

	d := New(path, "")
	srv := newServer(t)
	require.NoError(t, d.InitInfo(srv))
	defer d.Shutdown(srv) //nolint:errcheck // test cleanup

	assert.Equal(t, "OB", value(t, srv, "ups.status"))
	assert.Equal(t, "80", value(t, srv, "battery.charge"))
	assert.True(t, d.defined["battery.charge"], "file variables accept SET")
}

func TestDriver_LoopModeFollowsTimers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups1.seq")
	writeFile(t, path, "ups.status: OL\nTIMER 10\nups.status: OB\nTIMER 5\n")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(path, "")
	d.now = func() time.Time { return clock }
	srv := newServer(t)
	require.NoError(t, d.InitInfo(srv))
	defer d.Shutdown(srv) //nolint:errcheck // test cleanup

	assert.Equal(t, "OL", value(t, srv, "ups.status"))

	clock = clock.Add(9 * time.Second)
	require.NoError(t, d.UpdateInfo(srv))
	assert.Equal(t, "OL", value(t, srv, "ups.status"), "timer not yet elapsed")

	clock = clock.Add(time.Second)
	require.NoError(t, d.UpdateInfo(srv))
	assert.Equal(t, "OB", value(t, srv, "ups.status"))

	clock = clock.Add(5 * time.Second)
	require.NoError(t, d.UpdateInfo(srv))
	assert.Equal(t, "OL", value(t, srv, "ups.status"), "sequence loops")
}

func TestDriver_SetVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups1.dev")
	writeFile(t, path, "ups.delay.shutdown: 20\n")

	d := New(path, ModeOnce)
	srv := newServer(t)
	require.NoError(t, d.InitInfo(srv))
	defer d.Shutdown(srv) //nolint:errcheck // test cleanup

	require.NoError(t, d.SetVar(srv, "UPS.DELAY.SHUTDOWN", "60"))
	assert.Equal(t, "60", value(t, srv, "ups.delay.shutdown"))

	assert.ErrorIs(t, d.SetVar(srv, "ups.nothing", "1"), ErrUnknownVariable)
	assert.NoError(t, d.InstCmd(srv, "beeper.off", ""))
}

func TestDriver_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups1.dev")
	writeFile(t, path, "ups.status: OL\n")

	d := New(path, "")
	srv := newServer(t)
	require.NoError(t, d.InitInfo(srv))
	defer d.Shutdown(srv) //nolint:errcheck // test cleanup

	writeFile(t, path, "ups.status: OB LB\n")

	select {
	case <-d.Wake():
	case <-time.After(3 * time.Second):
		t.Fatal("no wake-up after the file changed")
	}
	// Writes may arrive as several events; wait until the content is whole.
	require.Eventually(t, func() bool {
		if d.UpdateInfo(srv) != nil {
			return false
		}
		v, _ := srv.GetInfo("ups.status")
		if v != "OB LB" {
			d.changed.Store(true)
			return false
		}
		return true
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDriver_BadReloadKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups1.dev")
	writeFile(t, path, "ups.status: OL\n")

	d := New(path, "")
	srv := newServer(t)
	require.NoError(t, d.InitInfo(srv))
	defer d.Shutdown(srv) //nolint:errcheck // test cleanup

	writeFile(t, path, "ups.status OL\n")
	d.changed.Store(true)
	require.NoError(t, d.UpdateInfo(srv))
	assert.Equal(t, "OL", value(t, srv, "ups.status"))
}

func TestDriver_InitInfoMissingFile(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "nope.dev"), "")
	err := d.InitInfo(newServer(t))
	assert.ErrorContains(t, err, "opening")
	assert.NoError(t, d.Shutdown(nil))
}
