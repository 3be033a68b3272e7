package upsd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/state"
)

func newMirrorFixture() (*Daemon, *Device, *recorder) {
	d := New(Options{}, nil)
	rec := &recorder{}
	d.SetNotifier(rec)
	dev := newDevice(testDevice("ups1"), time.Now(), time.Minute)
	return d, dev, rec
}

func TestApply(t *testing.T) {
	d, dev, rec := newMirrorFixture()

	lines := [][]string{
		{"SETINFO", "ups.status", "OL"},
		{"SETINFO", "ups.status", "ol"},
		{"SETINFO", "input.sensitivity", "M"},
		{"ADDENUM", "input.sensitivity", "L"},
		{"ADDENUM", "input.sensitivity", "L"},
		{"ADDENUM", "missing", "L"},
		{"SETFLAGS", "input.sensitivity", "RW", "BOGUS"},
		{"SETAUX", "input.sensitivity", "3"},
		{"SETAUX", "input.sensitivity", "x"},
		{"ADDCMD", "beeper.off"},
		{"ADDCMD", "BEEPER.OFF"},
		{"DUMPDONE"},
		{"DATAOK"},
	}
	for _, args := range lines {
		d.apply(dev, args)
	}

	v, ok := dev.store.Lookup("input.sensitivity")
	require.True(t, ok)
	assert.Equal(t, []string{"L"}, v.Enums())
	assert.Equal(t, state.FlagRW, v.Flags())
	assert.Equal(t, 3, v.Aux())

	st, _ := dev.store.Get("ups.status")
	assert.Equal(t, "OL", st)

	assert.Equal(t, []string{"beeper.off"}, dev.cmds.List())
	assert.True(t, dev.dumpDone)
	assert.True(t, dev.dataOK)

	assert.Equal(t, 2, rec.count(EventVariableSet), "unchanged SETINFO emits nothing")
	assert.Equal(t, 1, rec.count(EventCommandAdded))

	d.apply(dev, []string{"DATASTALE"})
	assert.False(t, dev.dataOK)

	d.apply(dev, []string{"DELENUM", "input.sensitivity", "L"})
	enums, _ := dev.store.Enums("input.sensitivity")
	assert.Empty(t, enums)

	d.apply(dev, []string{"DELINFO", "input.sensitivity"})
	d.apply(dev, []string{"DELCMD", "beeper.off"})
	_, ok = dev.store.Get("input.sensitivity")
	assert.False(t, ok)
	assert.Zero(t, dev.cmds.Len())
	assert.Equal(t, 1, rec.count(EventVariableDeleted))
	assert.Equal(t, 1, rec.count(EventCommandDeleted))
}

func TestApply_IgnoresMalformed(t *testing.T) {
	d, dev, rec := newMirrorFixture()

	for _, args := range [][]string{
		{"SETINFO", "only.name"},
		{"DELINFO"},
		{"WHATEVER", "x"},
		{"PONG"},
	} {
		d.apply(dev, args)
	}

	assert.Zero(t, dev.store.Len())
	assert.Zero(t, rec.count(EventVariableSet))
}

func TestUpdateStale(t *testing.T) {
	d, dev, rec := newMirrorFixture()
	now := time.Now()

	d.updateStale(dev, now)
	assert.True(t, dev.stale, "no connection")

	dev.conn = &driverConn{}
	dev.dumpDone = true
	dev.dataOK = true
	dev.lastHeard = now

	d.updateStale(dev, now)
	assert.False(t, dev.stale)
	_, ok := rec.find(EventDeviceOK, "ups1")
	assert.True(t, ok)

	d.updateStale(dev, now.Add(d.opts.MaxAge+time.Second))
	assert.True(t, dev.stale, "not heard within max age")
	assert.Equal(t, 1, rec.count(EventDeviceStale))
}

func TestDeviceStatusAndAvailability(t *testing.T) {
	dev := newDevice(testDevice("ups1"), time.Now(), time.Minute)

	assert.ErrorIs(t, dev.available(), ErrDriverNotConnected)
	dev.conn = &driverConn{}
	assert.ErrorIs(t, dev.available(), ErrDataStale)
	dev.stale = false
	assert.NoError(t, dev.available())

	assert.Equal(t, "", dev.status())
	dev.fsd = true
	assert.Equal(t, "FSD", dev.status())
	dev.store.Set("ups.status", "OB LB")
	assert.Equal(t, "FSD OB LB", dev.status())
}
