package frame

import (
	"fmt"
	"strings"
)

// escapeValue applies the STOMP 1.2 header escape table to a header name
// or value before it is written to the wire:
//
//	\  -> \\
//	CR -> \r
//	LF -> \n
//	:  -> \c
var valueEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\r", "\\r",
	"\n", "\\n",
	":", "\\c",
)

func escapeValue(s string) string {
	return valueEscaper.Replace(s)
}

// unescapeValue reverses escapeValue, rejecting any backslash sequence
// outside the four recognized escapes as a protocol error.
func unescapeValue(b []byte) (string, error) {
	var out strings.Builder
	out.Grow(len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' {
			out.WriteByte(c)
			continue
		}
		if i+1 >= len(b) {
			return "", fmt.Errorf("dangling escape at end of header")
		}
		switch b[i+1] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 'c':
			out.WriteByte(':')
		case '\\':
			out.WriteByte('\\')
		default:
			return "", fmt.Errorf("invalid escape sequence \\%c", b[i+1])
		}
		i++
	}
	return out.String(), nil
}
