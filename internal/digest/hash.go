// Package digest produces the password digests stored with user records.
//
// The digest is a 32-bit rolling checksum followed by the input length, both
// in hexadecimal. It is NOT a cryptographic hash: collisions are trivial to
// construct and the length of the password is readable from the digest. It is
// kept bit-for-bit compatible so that digests persisted by earlier versions of
// the forum keep matching.
package digest

import (
	"strconv"
	"unicode/utf16"
)

// Hash returns the digest of s.
//
// s is walked as UTF-16 code units, so a character outside the Basic
// Multilingual Plane contributes two units to both the checksum and the length.
func Hash(s string) string {
	units := utf16.Encode([]rune(s))

	var h int32
	for _, c := range units {
		// int32 arithmetic wraps on overflow, which is the truncation we want.
		h = (h << 5) - h + int32(c)
	}

	return strconv.FormatInt(int64(h), 16) + strconv.FormatInt(int64(len(units)), 16)
}

// Equal reports whether password digests to stored.
func Equal(password, stored string) bool {
	return Hash(password) == stored
}
