// Package sanitize normalizes caller-supplied free text before it is written
// to the store. Single-line fields lose all control characters and inner runs
// of whitespace; multi-line fields keep newlines but drop the rest.
package sanitize

import (
	"strings"
	"unicode"
)

// Line cleans a single-line text field: control characters are removed in
// place, whitespace runs collapse to one space, and the result is trimmed.
// A control character between two letters joins them rather than splitting
// them; only genuine whitespace separates words.
func Line(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Text cleans a multi-line text field: line endings are normalized to \n,
// other control characters are dropped, and the result is trimmed.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
