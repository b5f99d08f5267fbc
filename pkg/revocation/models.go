// Package revocation implements the hierarchical revocation dataset
// (Revocation -> Partition -> Chunk -> Slice) and the probabilistic
// membership lookup used to decide whether a certificate hash is revoked.
package revocation

import (
	"strings"
	"time"

	"github.com/trustpass/inspect/pkg/hashutil"
)

// Mode defines how a signer's revocation set is sharded by hash prefix.
type Mode string

// Sharding modes.
const (
	// ModePoint keeps the whole set in a single partition.
	ModePoint Mode = "POINT"
	// ModeVector buckets by the first hash byte.
	ModeVector Mode = "VECTOR"
	// ModeCoordinate buckets by the first two hash bytes.
	ModeCoordinate Mode = "COORDINATE"
)

// HashType identifies which derived certificate hash a slice covers.
type HashType string

// Supported hash types.
const (
	HashTypeSignature      HashType = "SIGNATURE"
	HashTypeUCI            HashType = "UCI"
	HashTypeCountryCodeUCI HashType = "COUNTRYCODEUCI"
)

// NoCoordinate is the placeholder for an undefined partition coordinate.
const NoCoordinate = "null"

// Revocation is the per-signer root of the hierarchy.
type Revocation struct {
	KID         string    `json:"kid"`
	HashTypes   []string  `json:"hashTypes"`
	Mode        Mode      `json:"mode"`
	Expires     time.Time `json:"expires"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// HasHashType reports whether the signer publishes slices for the hash type.
func (r *Revocation) HasHashType(ht HashType) bool {
	for _, t := range r.HashTypes {
		if strings.EqualFold(t, string(ht)) {
			return true
		}
	}
	return false
}

// Partition shards a signer's revocation set. X and Y are hash-prefix
// buckets, set to NoCoordinate when the mode does not use them.
// Under POINT mode there is exactly one partition.
type Partition struct {
	KID         string    `json:"kid"`
	ID          string    `json:"id"`
	X           string    `json:"x"`
	Y           string    `json:"y"`
	Expired     time.Time `json:"expired"`
	LastUpdated time.Time `json:"lastUpdated"`
	Chunks      []Chunk   `json:"chunks"`
}

// Chunk groups the slices of one lookup bucket.
type Chunk struct {
	CID    string  `json:"cid"`
	Slices []Slice `json:"slices"`
}

// Slice carries one filter payload. HashData is absent until fetched.
type Slice struct {
	HashID      string    `json:"hashID"`
	Type        string    `json:"type"`
	Version     string    `json:"version"`
	ExpiredDate time.Time `json:"expiredDate"`
	HashData    []byte    `json:"hashData,omitempty"`
}

// SliceMetadata addresses a slice payload within the hierarchy.
type SliceMetadata struct {
	KID         string
	PartitionID string
	CID         string
	HashID      string
	Data        []byte
}

// Coordinates derives the partition coordinates and chunk id for a hash
// under the given mode. The hash is hex encoded; buckets are successive
// single-byte prefixes.
func Coordinates(mode Mode, hash string) (x, y, cid string) {
	switch mode {
	case ModeVector:
		return hashutil.PrefixByte(hash, 0), NoCoordinate, hashutil.PrefixByte(hash, 1)
	case ModeCoordinate:
		return hashutil.PrefixByte(hash, 0), hashutil.PrefixByte(hash, 1), hashutil.PrefixByte(hash, 2)
	default:
		return NoCoordinate, NoCoordinate, hashutil.PrefixByte(hash, 0)
	}
}
