package upsd

import (
	"fmt"
	"os"

	"github.com/nerrad567/upswatch/internal/dstate"
)

// Discovered is a driver socket found in the state path.
type Discovered struct {
	Socket string
	Driver string
	Device string
}

// DeviceConfig returns a device definition for the socket. A driver
// serving an unnamed device is named after the driver and keeps its
// socket name as is.
func (f Discovered) DeviceConfig() DeviceConfig {
	name := f.Device
	if name == "" {
		name = f.Driver
	}
	return DeviceConfig{
		Name:   name,
		Driver: f.Driver,
		Port:   "auto",
		Desc:   "discovered",
		Socket: f.Socket,
	}
}

// Discover lists the driver sockets in statePath.
func Discover(statePath string, knownDrivers ...string) ([]Discovered, error) {
	entries, err := os.ReadDir(statePath)
	if err != nil {
		return nil, fmt.Errorf("reading state path: %w", err)
	}

	var out []Discovered
	for _, e := range entries {
		if e.Type()&os.ModeSocket == 0 {
			continue
		}
		driver, device := dstate.ParseSocketName(e.Name(), knownDrivers...)
		out = append(out, Discovered{Socket: e.Name(), Driver: driver, Device: device})
	}
	return out, nil
}
