package wire

import "errors"

var (
	// ErrParse is returned when a line cannot be tokenized. The stream is
	// still aligned on the next line, so callers may keep reading.
	ErrParse = errors.New("wire: parse error")

	// ErrLineTooLong is returned when a line exceeds the reader's limit.
	// The stream can no longer be trusted and should be closed.
	ErrLineTooLong = errors.New("wire: line too long")

	// ErrLineBreak is returned for a value that contains CR or LF.
	ErrLineBreak = errors.New("wire: value contains a line break")
)
