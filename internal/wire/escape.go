package wire

import "strings"

// Escape returns s with backslashes and double quotes prefixed by a
// backslash so it can be placed between quotes on the wire.
// When s contains neither character it is returned unchanged.
func Escape(s string) string {
	if !strings.ContainsAny(s, `\"`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Unescape reverses Escape: every backslash is dropped and the byte after
// it kept literally. A trailing lone backslash is kept.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ValidValue reports whether s can travel inside a single protocol line.
// Escaping covers quotes and backslashes only, so CR and LF must never
// reach the wire.
func ValidValue(s string) bool {
	return !strings.ContainsAny(s, "\r\n")
}

// Quote escapes s and wraps it in double quotes.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}
