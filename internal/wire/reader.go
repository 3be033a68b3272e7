package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxLineLength bounds a single protocol line, newline included.
const DefaultMaxLineLength = 4096

// Reader reads newline-terminated protocol lines from a stream and
// tokenizes them. It holds the partial-line state of one connection.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r. Lines longer than maxLine bytes are rejected with
// ErrLineTooLong; maxLine <= 0 selects DefaultMaxLineLength.
func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{br: bufio.NewReaderSize(r, maxLine)}
}

// ReadLine returns the next line without its terminator.
// A final line not ending in '\n' is discarded and io.EOF returned.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return string(line[:len(line)-1]), nil
}

// ReadArgs reads and tokenizes the next line. Empty lines are skipped.
// A tokenize failure is returned wrapped in ErrParse together with the
// offending line; the reader stays positioned on the following line.
func (r *Reader) ReadArgs() ([]string, error) {
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, err
		}

		args, err := Tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("%w (line %q)", err, line)
		}
		if len(args) > 0 {
			return args, nil
		}
	}
}
