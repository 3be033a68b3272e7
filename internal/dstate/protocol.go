package dstate

import (
	"strings"

	"github.com/nerrad567/upswatch/internal/wire"
)

// handleCommand runs one inbound line from a listener.
func (s *Server) handleCommand(c *conn, args []string) {
	verb := strings.ToUpper(args[0])

	switch verb {
	case wire.VerbDumpAll:
		s.dumpAll(c)

	case wire.VerbPing:
		s.sendTo(c, wire.Pong)

	case wire.VerbInstCmd:
		if len(args) < 2 {
			s.logger.Info("INSTCMD without a command name", "conn", c.id)
			return
		}
		extra := ""
		if len(args) > 2 {
			extra = args[2]
		}
		s.instCmd(args[1], extra)

	case wire.VerbSet:
		if len(args) < 3 {
			s.logger.Info("SET needs a variable and a value", "conn", c.id)
			return
		}
		s.setVar(args[1], args[2])

	default:
		s.logger.Info("unknown command on state socket", "conn", c.id, "command", args[0], "args", len(args)-1)
	}
}

func (s *Server) instCmd(cmd, extra string) {
	if s.handlers.InstCmd == nil {
		s.logger.Warn("Got INSTCMD, but driver lacks a handler", "command", cmd)
		return
	}
	if err := s.handlers.InstCmd(cmd, extra); err != nil {
		s.logger.Warn("instant command failed", "command", cmd, "error", err)
	}
}

func (s *Server) setVar(name, value string) {
	if s.handlers.SetVar == nil {
		s.logger.Warn("Got SET, but driver lacks a handler", "var", name)
		return
	}
	if err := s.handlers.SetVar(name, value); err != nil {
		s.logger.Warn("set variable failed", "var", name, "error", err)
	}
}

// dumpAll replays the full state to one listener. It stops at the first
// failed write, which has already dropped the listener.
func (s *Server) dumpAll(c *conn) {
	send := func(msg string) bool { return s.sendTo(c, msg) }

	if s.stale && !send(wire.DataStale) {
		return
	}

	for _, v := range s.store.Variables() {
		if !send(wire.SetInfo(v.Name(), v.Display())) {
			return
		}
		for _, e := range v.Enums() {
			if !send(wire.AddEnum(v.Name(), e)) {
				return
			}
		}
		if v.Aux() != 0 && !send(wire.SetAux(v.Name(), v.Aux())) {
			return
		}
		if v.Flags() != 0 && !send(wire.SetFlags(v.Name(), v.Flags().Tokens())) {
			return
		}
	}

	for _, cmd := range s.cmds.List() {
		if !send(wire.AddCmd(cmd)) {
			return
		}
	}

	if !send(wire.DumpDone) {
		return
	}
	if !s.stale {
		send(wire.DataOK)
	}
}
