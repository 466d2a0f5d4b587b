package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":              {"Aozora Design", "Aozora Design"},
		"trims":              {"  Aozora Design  ", "Aozora Design"},
		"collapses runs":     {"Aozora   \t Design", "Aozora Design"},
		"drops control":      {"Aozora\x00Design", "AozoraDesign"},
		"control joins":      {"Ao\x1bzora  Design", "Aozora Design"},
		"newlines collapse":  {"Aozora\nDesign", "Aozora Design"},
		"empty":              {"", ""},
		"whitespace only":    {" \t\n ", ""},
		"multibyte survives": {"星野　印刷", "星野 印刷"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, Line(tc.in))
		})
	}
}

func TestText(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"keeps newlines":    {"line one\nline two", "line one\nline two"},
		"normalizes crlf":   {"line one\r\nline two\rline three", "line one\nline two\nline three"},
		"keeps tabs":        {"a\tb", "a\tb"},
		"drops control":     {"a\x00b\x1bc", "abc"},
		"trims outer space": {"\n\n memo \n", "memo"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, Text(tc.in))
		})
	}
}
