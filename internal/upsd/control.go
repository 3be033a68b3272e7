package upsd

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/nerrad567/upswatch/internal/state"
	"github.com/nerrad567/upswatch/internal/wire"
)

// Devices returns a summary of every device, ordered by name.
func (d *Daemon) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	err := d.do(ctx, func() {
		for _, key := range slices.Sorted(maps.Keys(d.devices)) {
			out = append(out, d.devices[key].info(false))
		}
	})
	return out, err
}

// Device returns a full snapshot of one device, variables and commands included.
func (d *Daemon) Device(ctx context.Context, name string) (DeviceInfo, error) {
	var (
		info DeviceInfo
		ferr error
	)
	err := d.do(ctx, func() {
		dev, err := d.lookup(name)
		if err != nil {
			ferr = err
			return
		}
		info = dev.info(true)
	})
	if err != nil {
		return DeviceInfo{}, err
	}
	return info, ferr
}

// Variable returns one mirrored variable.
func (d *Daemon) Variable(ctx context.Context, device, name string) (VariableInfo, error) {
	var (
		info VariableInfo
		ferr error
	)
	err := d.do(ctx, func() {
		dev, err := d.lookup(device)
		if err != nil {
			ferr = err
			return
		}
		v, ok := dev.store.Lookup(name)
		if !ok {
			ferr = fmt.Errorf("%w: %s", ErrVarNotSupported, name)
			return
		}
		info = variableInfo(v)
	})
	if err != nil {
		return VariableInfo{}, err
	}
	return info, ferr
}

// SetVar asks a device's driver to change a variable.
//
// The request is checked against the mirrored state first: the variable
// must exist and be RW, a STRING value must fit its aux length, and when
// enumerated values are advertised the value must be one of them. The
// driver still has the final word; any accepted change arrives back as an
// ordinary SETINFO.
func (d *Daemon) SetVar(ctx context.Context, device, name, value string) error {
	var ferr error
	err := d.do(ctx, func() {
		ferr = d.setVar(device, name, value)
	})
	if err != nil {
		return err
	}
	return ferr
}

func (d *Daemon) setVar(device, name, value string) error {
	dev, err := d.lookup(device)
	if err != nil {
		return err
	}
	if err := dev.available(); err != nil {
		return fmt.Errorf("%w: %s", err, dev.cfg.Name)
	}

	v, ok := dev.store.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrVarNotSupported, name)
	}
	if !v.Flags().Has(state.FlagRW) {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if !wire.ValidValue(value) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, wire.ErrLineBreak)
	}
	if v.Flags().Has(state.FlagString) && len(value) > v.Aux() {
		return fmt.Errorf("%w: %s allows %d characters", ErrTooLong, name, v.Aux())
	}
	if enums := v.Enums(); len(enums) > 0 && !slices.Contains(enums, wire.Escape(value)) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidValue, value, name)
	}

	if err := dev.conn.send(wire.Set(v.Name(), value)); err != nil {
		d.dropConn(dev)
		return fmt.Errorf("%w: %w", ErrDriverNotConnected, err)
	}
	d.logger.Info("SET forwarded to driver", "ups", dev.cfg.Name, "var", v.Name(), "value", value)
	return nil
}

// InstCmd asks a device's driver to run an instant command.
func (d *Daemon) InstCmd(ctx context.Context, device, cmd, extra string) error {
	var ferr error
	err := d.do(ctx, func() {
		ferr = d.instCmd(device, cmd, extra)
	})
	if err != nil {
		return err
	}
	return ferr
}

func (d *Daemon) instCmd(device, cmd, extra string) error {
	dev, err := d.lookup(device)
	if err != nil {
		return err
	}
	if err := dev.available(); err != nil {
		return fmt.Errorf("%w: %s", err, dev.cfg.Name)
	}
	if !dev.cmds.Has(cmd) {
		return fmt.Errorf("%w: %s", ErrCmdNotSupported, cmd)
	}
	if !wire.ValidValue(extra) {
		return fmt.Errorf("%w: %s argument: %w", ErrInvalidValue, cmd, wire.ErrLineBreak)
	}

	if err := dev.conn.send(wire.InstCmd(cmd, extra)); err != nil {
		d.dropConn(dev)
		return fmt.Errorf("%w: %w", ErrDriverNotConnected, err)
	}
	d.logger.Info("INSTCMD forwarded to driver", "ups", dev.cfg.Name, "command", cmd)
	return nil
}

// SetFSD raises the forced-shutdown flag on a device. Monitoring clients
// see FSD at the front of ups.status from then on. The flag stays set
// until the device is removed.
func (d *Daemon) SetFSD(ctx context.Context, device, by string) error {
	var ferr error
	err := d.do(ctx, func() {
		dev, err := d.lookup(device)
		if err != nil {
			ferr = err
			return
		}
		if dev.fsd {
			return
		}
		dev.fsd = true
		d.logger.Warn("Setting FSD on UPS", "ups", dev.cfg.Name, "by", by)
		d.emit(Event{Kind: EventForcedShutdown, Device: dev.cfg.Name, Value: dev.status()})
	})
	if err != nil {
		return err
	}
	return ferr
}

// Login records a client attached to a device. Clients are kicked when
// the device is removed.
func (d *Daemon) Login(ctx context.Context, device string) error {
	var ferr error
	err := d.do(ctx, func() {
		dev, err := d.lookup(device)
		if err != nil {
			ferr = err
			return
		}
		dev.logins++
	})
	if err != nil {
		return err
	}
	return ferr
}

// Logout releases a Login. Unknown devices are ignored: the device may
// already have been removed and its clients kicked.
func (d *Daemon) Logout(ctx context.Context, device string) error {
	return d.do(ctx, func() {
		if dev, ok := d.devices[deviceKey(device)]; ok && dev.logins > 0 {
			dev.logins--
		}
	})
}
