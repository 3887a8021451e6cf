package identity

import (
	"fmt"
	"strings"
)

// Stringify is the canonical string form fed to the hash. Changing the String
// method of a key type changes every identifier derived from it.
func Stringify(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		// fmt prints map keys in sorted order, so maps are stable here.
		return fmt.Sprint(v)
	}
}

const upperHex = "0123456789ABCDEF"

// Quote percent-encodes s for use as an IRI suffix. Letters, digits, '_', '.',
// '-', '~' and '/' pass through; every other byte becomes %XX.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldPass(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func shouldPass(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '~', c == '/':
		return true
	}
	return false
}
