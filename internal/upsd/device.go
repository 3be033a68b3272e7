package upsd

import (
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/upswatch/internal/dstate"
	"github.com/nerrad567/upswatch/internal/state"
	"github.com/nerrad567/upswatch/internal/wire"
)

// DeviceConfig declares one UPS to monitor.
type DeviceConfig struct {
	// Name is the UPS name, also the device part of the socket name.
	Name string

	// Driver is the driver program serving the UPS.
	Driver string

	// Port is the driver's hardware port (serial device, file, host).
	Port string

	// Desc is a free-form description shown to clients.
	Desc string

	// Socket overrides the socket file name derived from Driver and Name.
	// Discovery sets it for drivers serving an unnamed device.
	Socket string
}

// SocketName returns the driver socket file name for the device.
func (c DeviceConfig) SocketName() string {
	if c.Socket != "" {
		return c.Socket
	}
	return dstate.SocketName(c.Driver, c.Name)
}

// Device is upsd's record of one UPS. It is owned by the daemon loop.
type Device struct {
	cfg    DeviceConfig
	socket string

	conn   *driverConn
	connID uint64

	store *state.Store
	cmds  *state.Commands

	stale    bool
	dumpDone bool
	dataOK   bool
	fsd      bool
	retain   bool
	logins   int

	lastHeard       time.Time
	lastPing        time.Time
	lastConnAttempt time.Time

	connFailLog rate.Sometimes
}

func newDevice(cfg DeviceConfig, now time.Time, connFailInterval time.Duration) *Device {
	return &Device{
		cfg:         cfg,
		socket:      cfg.SocketName(),
		store:       state.NewStore(),
		cmds:        state.NewCommands(),
		stale:       true,
		retain:      true,
		lastHeard:   now,
		connFailLog: rate.Sometimes{Interval: connFailInterval},
	}
}

func deviceKey(name string) string {
	return strings.ToLower(name)
}

// status returns ups.status as clients see it, FSD first when set.
func (d *Device) status() string {
	st, _ := d.store.Get(dstate.VarStatus)
	if d.fsd {
		return strings.TrimSpace("FSD " + st)
	}
	return st
}

// available reports whether requests may be forwarded to the driver.
func (d *Device) available() error {
	if d.conn == nil {
		return ErrDriverNotConnected
	}
	if d.stale {
		return ErrDataStale
	}
	return nil
}

// VariableInfo is a snapshot of one mirrored variable.
type VariableInfo struct {
	Name  string   `json:"name"`
	Value string   `json:"value"`
	Flags []string `json:"flags,omitempty"`
	Aux   int      `json:"aux,omitempty"`
	Enums []string `json:"enums,omitempty"`
}

// DeviceInfo is a snapshot of a device, safe to use outside the daemon loop.
type DeviceInfo struct {
	Name      string         `json:"name"`
	Driver    string         `json:"driver"`
	Port      string         `json:"port"`
	Desc      string         `json:"desc,omitempty"`
	Status    string         `json:"status"`
	Connected bool           `json:"connected"`
	Stale     bool           `json:"stale"`
	DumpDone  bool           `json:"dump_done"`
	DataOK    bool           `json:"data_ok"`
	FSD       bool           `json:"fsd"`
	Logins    int            `json:"logins"`
	LastHeard time.Time      `json:"last_heard"`
	Variables []VariableInfo `json:"variables,omitempty"`
	Commands  []string       `json:"commands,omitempty"`

	// ConnID changes every time upsd reconnects to the driver.
	ConnID uint64 `json:"-"`
}

func variableInfo(v *state.Variable) VariableInfo {
	info := VariableInfo{
		Name:  v.Name(),
		Value: v.Value(),
		Flags: v.Flags().Tokens(),
		Aux:   v.Aux(),
	}
	for _, e := range v.Enums() {
		info.Enums = append(info.Enums, wire.Unescape(e))
	}
	return info
}

func (d *Device) info(full bool) DeviceInfo {
	info := DeviceInfo{
		Name:      d.cfg.Name,
		Driver:    d.cfg.Driver,
		Port:      d.cfg.Port,
		Desc:      d.cfg.Desc,
		Status:    d.status(),
		Connected: d.conn != nil,
		Stale:     d.stale,
		DumpDone:  d.dumpDone,
		DataOK:    d.dataOK,
		FSD:       d.fsd,
		Logins:    d.logins,
		LastHeard: d.lastHeard,
		ConnID:    d.connID,
	}
	if !full {
		return info
	}

	for _, v := range d.store.Variables() {
		info.Variables = append(info.Variables, variableInfo(v))
	}
	info.Commands = d.cmds.List()
	return info
}
