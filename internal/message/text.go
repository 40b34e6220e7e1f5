package message

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Domain returns the lower-cased part of addr after the last '@', or the
// whole address lower-cased when there is none.
func Domain(addr string) string {
	return strings.ToLower(addr[strings.LastIndexByte(addr, '@')+1:])
}

// Local returns the part of addr before the last '@', or "" when there is none.
func Local(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return addr[:i]
}

// DecodeText turns output of unknown encoding into a string that is safe to
// place in a header field. Valid UTF-8 is kept as is; anything else is read
// as Windows-1252, which decodes every byte. Control characters other than tab
// are removed.
func DecodeText(b []byte) string {
	s := string(b)
	if !utf8.Valid(b) {
		out, _ := charmap.Windows1252.NewDecoder().Bytes(b)
		s = string(out)
	}

	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
