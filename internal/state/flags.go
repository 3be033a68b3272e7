package state

import "strings"

// Flags describes how a variable may be used by listeners.
type Flags uint8

const (
	// FlagRW marks a variable that listeners may change with SET.
	FlagRW Flags = 1 << iota
	// FlagString marks a free-form string variable; aux holds its max length.
	FlagString
)

// Wire tokens for each flag, in the order they are emitted.
var flagTokens = []struct {
	flag  Flags
	token string
}{
	{FlagRW, "RW"},
	{FlagString, "STRING"},
}

// ParseFlags builds a flag set from case-insensitive tokens.
// Tokens that name no known flag are returned in unknown.
func ParseFlags(tokens []string) (flags Flags, unknown []string) {
next:
	for _, tok := range tokens {
		for _, ft := range flagTokens {
			if strings.EqualFold(tok, ft.token) {
				flags |= ft.flag
				continue next
			}
		}
		unknown = append(unknown, tok)
	}
	return flags, unknown
}

// Tokens returns the wire tokens for f.
func (f Flags) Tokens() []string {
	var out []string
	for _, ft := range flagTokens {
		if f&ft.flag != 0 {
			out = append(out, ft.token)
		}
	}
	return out
}

// Has reports whether every flag in other is set in f.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// String returns the tokens joined by spaces.
func (f Flags) String() string {
	return strings.Join(f.Tokens(), " ")
}
