package upsd

import (
	"strings"

	"github.com/nerrad567/upswatch/internal/state"
	"github.com/nerrad567/upswatch/internal/wire"
)

// minArgs is the number of tokens each driver message needs, verb included.
var minArgs = map[string]int{
	wire.VerbSetInfo:   3,
	wire.VerbAddEnum:   3,
	wire.VerbDelEnum:   3,
	wire.VerbSetAux:    3,
	wire.VerbSetFlags:  2,
	wire.VerbDelInfo:   2,
	wire.VerbAddCmd:    2,
	wire.VerbDelCmd:    2,
	wire.VerbDataOK:    1,
	wire.VerbDataStale: 1,
	wire.VerbDumpDone:  1,
	wire.VerbPong:      1,
}

// apply patches a device's mirror with one line from its driver, using the
// same store operations the driver used to produce it.
func (d *Daemon) apply(dev *Device, args []string) {
	verb := strings.ToUpper(args[0])
	need, known := minArgs[verb]
	if !known {
		d.logger.Info("unknown message from driver", "ups", dev.cfg.Name, "message", args[0])
		return
	}
	if len(args) < need {
		d.logger.Info("short message from driver", "ups", dev.cfg.Name, "message", args[0], "args", len(args)-1)
		return
	}

	name := dev.cfg.Name
	switch verb {
	case wire.VerbSetInfo:
		if dev.store.Set(args[1], args[2]).Modified() {
			v, _ := dev.store.Lookup(args[1])
			d.emit(Event{Kind: EventVariableSet, Device: name, Name: v.Name(), Value: v.Value()})
			metricDeviceVariables.WithLabelValues(name).Set(float64(dev.store.Len()))
		}

	case wire.VerbDelInfo:
		if dev.store.Delete(args[1]) {
			d.emit(Event{Kind: EventVariableDeleted, Device: name, Name: args[1]})
			metricDeviceVariables.WithLabelValues(name).Set(float64(dev.store.Len()))
		}

	case wire.VerbAddEnum:
		if _, err := dev.store.AddEnum(args[1], args[2]); err != nil {
			d.logger.Debug("enum for unknown variable", "ups", name, "var", args[1], "error", err)
		}

	case wire.VerbDelEnum:
		if _, err := dev.store.DelEnum(args[1], args[2]); err != nil {
			d.logger.Debug("enum for unknown variable", "ups", name, "var", args[1], "error", err)
		}

	case wire.VerbSetAux:
		if _, err := dev.store.SetAux(args[1], args[2]); err != nil {
			d.logger.Debug("cannot set aux", "ups", name, "var", args[1], "error", err)
		}

	case wire.VerbSetFlags:
		flags, unknown := state.ParseFlags(args[2:])
		for _, tok := range unknown {
			d.logger.Debug("ignoring unknown flag", "ups", name, "var", args[1], "flag", tok)
		}
		if _, err := dev.store.SetFlags(args[1], flags); err != nil {
			d.logger.Debug("flags for unknown variable", "ups", name, "var", args[1], "error", err)
		}

	case wire.VerbAddCmd:
		if dev.cmds.Add(args[1]) {
			d.emit(Event{Kind: EventCommandAdded, Device: name, Name: args[1]})
		}

	case wire.VerbDelCmd:
		if dev.cmds.Delete(args[1]) {
			d.emit(Event{Kind: EventCommandDeleted, Device: name, Name: args[1]})
		}

	case wire.VerbDataOK:
		dev.dataOK = true

	case wire.VerbDataStale:
		dev.dataOK = false

	case wire.VerbDumpDone:
		dev.dumpDone = true
		d.logger.Debug("dump complete", "ups", name, "variables", dev.store.Len(), "commands", dev.cmds.Len())

	case wire.VerbPong:
	}
}
