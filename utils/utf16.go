package utils

import (
	"unicode/utf8"
)

const (
	surr1    = 0xd800
	surr3    = 0xe000
	surrSelf = 0x10000
	maxRune  = '\U0010FFFF'
)

// Utf16Len returns the number of UTF-16 code units needed to encode v.
func Utf16Len(v rune) int {
	switch {
	case 0 <= v && v < surr1, surr3 <= v && v < surrSelf:
		return 1
	case surrSelf <= v && v <= maxRune:
		return 2
	default:
		return 1
	}
}

// Utf16Count counts UTF-16 code units in a UTF-8 byte slice. Payload length
// prefixes count code units, not bytes, to match the reference JavaScript
// peers.
func Utf16Count(src []byte) (n int) {
	for len(src) > 0 {
		rb, l := utf8.DecodeRune(src)
		src = src[l:]
		if !utf8.ValidRune(rb) {
			rb = 0xFFFD
		}
		n += Utf16Len(rb)
	}
	return
}
