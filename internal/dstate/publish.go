package dstate

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/upswatch/internal/state"
	"github.com/nerrad567/upswatch/internal/wire"
)

// SetInfo publishes a variable value. Listeners receive SETINFO only when
// the variable was created or its value changed. A value containing CR or
// LF is refused and the variable keeps its previous value.
func (s *Server) SetInfo(name, value string) state.Result {
	if !wire.ValidValue(value) {
		s.logger.Error("refusing value with a line break", "var", name, "value", value)
		return state.Unchanged
	}
	res := s.store.Set(name, value)
	if res.Modified() {
		v, _ := s.store.Lookup(name)
		s.broadcast(wire.SetInfo(v.Name(), v.Display()))
	}
	return res
}

// SetInfof formats a value and publishes it with SetInfo.
func (s *Server) SetInfof(name, format string, args ...any) state.Result {
	return s.SetInfo(name, fmt.Sprintf(format, args...))
}

// GetInfo returns the current raw value of a variable.
func (s *Server) GetInfo(name string) (string, bool) {
	return s.store.Get(name)
}

// AddEnum advertises value as an allowed setting for a variable.
func (s *Server) AddEnum(name, value string) error {
	if !wire.ValidValue(value) {
		s.logger.Error("refusing enum with a line break", "var", name, "value", value)
		return wire.ErrLineBreak
	}
	added, err := s.store.AddEnum(name, value)
	if err != nil {
		s.logger.Error("cannot add enum", "var", name, "value", value, "error", err)
		return err
	}
	if added {
		v, _ := s.store.Lookup(name)
		s.broadcast(wire.AddEnum(v.Name(), wire.Escape(value)))
	}
	return nil
}

// DelEnum withdraws an allowed setting.
func (s *Server) DelEnum(name, value string) error {
	if !wire.ValidValue(value) {
		s.logger.Error("refusing enum with a line break", "var", name, "value", value)
		return wire.ErrLineBreak
	}
	deleted, err := s.store.DelEnum(name, value)
	if err != nil {
		s.logger.Error("cannot delete enum", "var", name, "value", value, "error", err)
		return err
	}
	if deleted {
		v, _ := s.store.Lookup(name)
		s.broadcast(wire.DelEnum(v.Name(), wire.Escape(value)))
	}
	return nil
}

// SetFlags replaces a variable's flags from tokens such as "RW" and "STRING".
// Unknown tokens are logged and ignored.
func (s *Server) SetFlags(name string, tokens ...string) error {
	flags, unknown := state.ParseFlags(tokens)
	for _, tok := range unknown {
		s.logger.Debug("ignoring unknown flag", "var", name, "flag", tok)
	}

	changed, err := s.store.SetFlags(name, flags)
	if err != nil {
		s.logger.Error("cannot set flags", "var", name, "error", err)
		return err
	}
	if changed {
		v, _ := s.store.Lookup(name)
		s.broadcast(wire.SetFlags(v.Name(), flags.Tokens()))
	}
	return nil
}

// SetAux parses and stores a variable's auxiliary integer.
func (s *Server) SetAux(name, aux string) error {
	changed, err := s.store.SetAux(name, aux)
	if err != nil {
		s.logger.Error("cannot set aux", "var", name, "aux", aux, "error", err)
		return err
	}
	if changed {
		v, _ := s.store.Lookup(name)
		s.broadcast(wire.SetAux(v.Name(), v.Aux()))
	}
	return nil
}

// SetAuxInt stores a variable's auxiliary integer.
func (s *Server) SetAuxInt(name string, aux int) error {
	return s.SetAux(name, strconv.Itoa(aux))
}

// DelInfo removes a variable. It reports whether the variable existed.
func (s *Server) DelInfo(name string) bool {
	v, ok := s.store.Lookup(name)
	if !ok {
		return false
	}
	stored := v.Name()
	s.store.Delete(name)
	s.broadcast(wire.DelInfo(stored))
	return true
}

// AddCmd advertises an instant command.
func (s *Server) AddCmd(name string) bool {
	if !s.cmds.Add(name) {
		return false
	}
	s.broadcast(wire.AddCmd(name))
	return true
}

// DelCmd withdraws an instant command.
func (s *Server) DelCmd(name string) bool {
	if !s.cmds.Delete(name) {
		return false
	}
	s.broadcast(wire.DelCmd(name))
	return true
}

// DataOK marks the device data fresh. Listeners are told only on change.
func (s *Server) DataOK() {
	if !s.stale {
		return
	}
	s.stale = false
	s.broadcast(wire.DataOK)
}

// DataStale marks the device data stale. Listeners are told only on change.
func (s *Server) DataStale() {
	if s.stale {
		return
	}
	s.stale = true
	s.broadcast(wire.DataStale)
}

// IsStale reports whether the device data is currently stale.
func (s *Server) IsStale() bool {
	return s.stale
}
