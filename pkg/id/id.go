// Package id generates sortable correlation identifiers for job payloads.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Crockford's Base32 alphabet, chosen because it excludes the easily
// confused characters I, L, O and U.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewCorrelationID returns a 26-character ULID: 10 characters of
// millisecond timestamp followed by 16 characters of randomness.
// IDs sort lexicographically by creation time, which keeps log
// searches for a job's lifecycle cheap.
func NewCorrelationID() string {
	ms := uint64(time.Now().UnixMilli())

	entropy := make([]byte, 10)
	if _, err := rand.Read(entropy); err != nil {
		// Degraded fallback; still unique enough for correlation purposes.
		binary.BigEndian.PutUint64(entropy[:8], uint64(time.Now().UnixNano()))
	}

	var out [26]byte
	for i := 9; i >= 0; i-- {
		out[i] = alphabet[ms&0x1F]
		ms >>= 5
	}

	// 80 bits of entropy packed into 16 base32 characters.
	var acc uint64
	var bits uint
	pos := 10
	for _, b := range entropy {
		acc = acc<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = alphabet[(acc>>bits)&0x1F]
			pos++
		}
	}

	return string(out[:])
}
