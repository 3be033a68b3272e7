package wire

import (
	"strconv"
	"strings"
)

// Protocol verbs.
const (
	VerbSetInfo   = "SETINFO"
	VerbAddEnum   = "ADDENUM"
	VerbDelEnum   = "DELENUM"
	VerbSetAux    = "SETAUX"
	VerbSetFlags  = "SETFLAGS"
	VerbDelInfo   = "DELINFO"
	VerbAddCmd    = "ADDCMD"
	VerbDelCmd    = "DELCMD"
	VerbDataStale = "DATASTALE"
	VerbDataOK    = "DATAOK"
	VerbDumpDone  = "DUMPDONE"
	VerbPong      = "PONG"

	VerbDumpAll = "DUMPALL"
	VerbPing    = "PING"
	VerbInstCmd = "INSTCMD"
	VerbSet     = "SET"
)

// Fixed messages.
const (
	DataStale = VerbDataStale + "\n"
	DataOK    = VerbDataOK + "\n"
	DumpDone  = VerbDumpDone + "\n"
	Pong      = VerbPong + "\n"
	DumpAll   = VerbDumpAll + "\n"
	Ping      = VerbPing + "\n"
)

// SetInfo builds a SETINFO line. escaped must already be wire-escaped.
func SetInfo(name, escaped string) string {
	return VerbSetInfo + " " + name + ` "` + escaped + "\"\n"
}

// AddEnum builds an ADDENUM line. escaped must already be wire-escaped.
func AddEnum(name, escaped string) string {
	return VerbAddEnum + " " + name + ` "` + escaped + "\"\n"
}

// DelEnum builds a DELENUM line. escaped must already be wire-escaped.
func DelEnum(name, escaped string) string {
	return VerbDelEnum + " " + name + ` "` + escaped + "\"\n"
}

// SetAux builds a SETAUX line.
func SetAux(name string, aux int) string {
	return VerbSetAux + " " + name + " " + strconv.Itoa(aux) + "\n"
}

// SetFlags builds a SETFLAGS line from flag tokens such as "RW".
func SetFlags(name string, tokens []string) string {
	var b strings.Builder
	b.WriteString(VerbSetFlags)
	b.WriteByte(' ')
	b.WriteString(name)
	for _, t := range tokens {
		b.WriteByte(' ')
		b.WriteString(t)
	}
	b.WriteByte('\n')
	return b.String()
}

// DelInfo builds a DELINFO line.
func DelInfo(name string) string {
	return VerbDelInfo + " " + name + "\n"
}

// AddCmd builds an ADDCMD line.
func AddCmd(name string) string {
	return VerbAddCmd + " " + name + "\n"
}

// DelCmd builds a DELCMD line.
func DelCmd(name string) string {
	return VerbDelCmd + " " + name + "\n"
}

// InstCmd builds an INSTCMD request. extra is omitted when empty.
func InstCmd(name, extra string) string {
	if extra == "" {
		return VerbInstCmd + " " + name + "\n"
	}
	return VerbInstCmd + " " + name + " " + Quote(extra) + "\n"
}

// Set builds a SET request carrying the raw value.
func Set(name, value string) string {
	return VerbSet + " " + name + " " + Quote(value) + "\n"
}
