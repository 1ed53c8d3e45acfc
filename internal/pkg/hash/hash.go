// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// Fields hashes a sequence of fields. Each field is length-prefixed so that
// ("ab", "c") and ("a", "bc") never collide.
func Fields(fields ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, f := range fields {
		n := uint64(len(f))
		for i := range prefix {
			prefix[i] = byte(n >> (8 * i))
		}
		h.Write(prefix[:])
		io.WriteString(h, f)
	}
	return hex.EncodeToString(h.Sum(nil))
}
