package wire

import (
	"fmt"
	"strings"
)

type tokenState int

const (
	stateFindStart tokenState = iota
	stateBare
	stateQuoted
)

// Tokenize splits one protocol line (without its trailing newline) into
// arguments, removing quotes and resolving backslash escapes.
//
// An empty or all-whitespace line yields no arguments and no error.
// An unterminated quoted string or a dangling backslash yields ErrParse.
func Tokenize(line string) ([]string, error) {
	var (
		args    []string
		tok     strings.Builder
		state   = stateFindStart
		escaped bool
	)

	endToken := func() {
		args = append(args, tok.String())
		tok.Reset()
	}

	for i := 0; i < len(line); i++ {
		ch := line[i]

		if escaped {
			tok.WriteByte(ch)
			escaped = false
			continue
		}

		switch state {
		case stateFindStart:
			switch {
			case isSpace(ch):
			case ch == '"':
				state = stateQuoted
			case ch == '\\':
				state = stateBare
				escaped = true
			default:
				state = stateBare
				tok.WriteByte(ch)
			}

		case stateBare:
			switch {
			case isSpace(ch):
				endToken()
				state = stateFindStart
			case ch == '"':
				endToken()
				state = stateQuoted
			case ch == '\\':
				escaped = true
			default:
				tok.WriteByte(ch)
			}

		case stateQuoted:
			switch ch {
			case '\\':
				escaped = true
			case '"':
				endToken()
				state = stateFindStart
			default:
				tok.WriteByte(ch)
			}
		}
	}

	if escaped {
		return nil, fmt.Errorf("%w: trailing backslash", ErrParse)
	}
	switch state {
	case stateQuoted:
		return nil, fmt.Errorf("%w: unterminated quoted string", ErrParse)
	case stateBare:
		endToken()
	}

	return args, nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}
