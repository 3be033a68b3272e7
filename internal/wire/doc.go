// Package wire implements the line protocol spoken on driver state sockets.
//
// Every message is a single line terminated by '\n'. A line is split into
// tokens on whitespace; a token is either a bare word or a double-quoted
// string in which backslash escapes the following byte (so `\"` and `\\`
// carry a literal quote and backslash).
//
// # Messages
//
// Driver to listener:
//
//	SETINFO <var> "<escaped-value>"
//	ADDENUM <var> "<escaped-value>"
//	SETAUX <var> <int>
//	SETFLAGS <var> [RW] [STRING]
//	DELINFO <var>
//	DELENUM <var> "<escaped-value>"
//	ADDCMD <cmd>
//	DELCMD <cmd>
//	DATASTALE
//	DATAOK
//	DUMPDONE
//	PONG
//
// Listener to driver:
//
//	DUMPALL
//	PING
//	INSTCMD <cmd> [<extra>]
//	SET <var> "<value>"
//
// # Usage
//
//	r := wire.NewReader(conn, wire.DefaultMaxLineLength)
//	for {
//	    args, err := r.ReadArgs()
//	    if errors.Is(err, wire.ErrParse) {
//	        continue // malformed line, connection stays usable
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(args)
//	}
package wire
