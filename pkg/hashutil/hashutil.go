// Package hashutil provides content hashing for cache integrity checks
// and revocation lookup key derivation.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the SHA-256 digest of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Matches returns true if the SHA-256 digest of data equals the expected
// hex digest. Comparison is case-insensitive.
func Matches(data []byte, hexDigest string) bool {
	return strings.EqualFold(SHA256Hex(data), hexDigest)
}

// PrefixByte returns the two-hex-char segment of hash at the given byte
// index, or an empty string if the hash is too short.
// Revocation partitions are bucketed by the leading bytes of a hash.
func PrefixByte(hash string, index int) string {
	hash = strings.ToLower(hash)
	start := index * 2
	if start+2 > len(hash) {
		return ""
	}
	return hash[start : start+2]
}

// Decode converts a hex-encoded hash to raw bytes,
// returning nil on malformed input.
func Decode(hash string) []byte {
	b, err := hex.DecodeString(hash)
	if err != nil {
		return nil
	}
	return b
}
