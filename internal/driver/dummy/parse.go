package dummy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/upswatch/internal/wire"
)

// Entry is one meaningful line of a definition file: either a variable
// assignment or, when Delay is set, a TIMER pause.
type Entry struct {
	Name  string
	Value string
	Delay time.Duration
	Line  int
}

// IsTimer reports whether the entry is a TIMER directive.
func (e Entry) IsTimer() bool {
	return e.Name == ""
}

// ParseFile parses the definition file at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path) //nolint:gosec // path is the configured port
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse reads definition lines. Values may be quoted with the protocol's
// escaping; '#' outside quotes starts a comment.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, wire.DefaultMaxLineLength), wire.DefaultMaxLineLength)

	for n := 1; sc.Scan(); n++ {
		args, err := wire.Tokenize(stripComment(sc.Text()))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSyntax, n, err)
		}
		if len(args) == 0 {
			continue
		}

		if strings.EqualFold(args[0], "TIMER") {
			if len(args) != 2 {
				return nil, fmt.Errorf("%w: line %d: TIMER needs one argument", ErrSyntax, n)
			}
			secs, err := strconv.ParseFloat(args[1], 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("%w: line %d: bad TIMER value %q", ErrSyntax, n, args[1])
			}
			entries = append(entries, Entry{Delay: time.Duration(secs * float64(time.Second)), Line: n})
			continue
		}

		// "name: value", tolerating a missing space after the colon.
		name, first, ok := strings.Cut(args[0], ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: line %d: expected \"name: value\"", ErrSyntax, n)
		}
		rest := args[1:]
		if first != "" {
			rest = append([]string{first}, rest...)
		}
		entries = append(entries, Entry{Name: name, Value: strings.Join(rest, " "), Line: n})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return entries, nil
}

// stripComment cuts line at the first '#' that is not inside quotes.
func stripComment(line string) string {
	quoted, escaped := false, false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case line[i] == '\\':
			escaped = true
		case line[i] == '"':
			quoted = !quoted
		case line[i] == '#' && !quoted:
			return line[:i]
		}
	}
	return line
}
