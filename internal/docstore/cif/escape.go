package cif

import (
	"fmt"
	"strconv"
	"strings"
)

// Escape converts s into the reversible ASCII form described in the package
// documentation.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	atLineStart := false
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == ';' && atLineStart:
			b.WriteString(`\;`)
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f || (r > 0x7f && r <= 0xffff):
			fmt.Fprintf(&b, `\u%04x`, r)
		case r > 0xffff:
			fmt.Fprintf(&b, `\U%08x`, r)
		default:
			b.WriteRune(r)
		}
		atLineStart = r == '\n'
	}
	return b.String()
}

// Unescape reverses Escape. It also accepts the \n, \t and \xHH forms found
// in files produced by older exporters. Unknown sequences are kept verbatim.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case '\\':
			b.WriteByte('\\')
			i++
		case ';':
			b.WriteByte(';')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[next]
			if i+2+width > len(s) {
				return "", fmt.Errorf("truncated escape %q", s[i:])
			}
			v, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid escape %q: %w", s[i:i+2+width], err)
			}
			b.WriteRune(rune(v))
			i += 1 + width
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
