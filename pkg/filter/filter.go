// Package filter implements the probabilistic membership structures carried
// by revocation slices: bloom filters and variable hash lists.
package filter

import (
	"bytes"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/errors"
)

// Slice type names as published by the revocation service.
const (
	TypeBloom       = "BLOOMFILTER"
	TypeVarHashList = "VARHASHLIST"
)

// ErrUnsupportedType is returned when a slice carries a filter type this
// engine does not know. Callers skip such slices with a diagnostic.
var ErrUnsupportedType = errors.New("unsupported filter type")

// Filter answers probabilistic membership queries for revoked hashes.
// A negative answer is authoritative; a positive answer means "possibly
// revoked" within the filter's documented false-positive rate.
type Filter interface {
	MightContain(hash []byte) bool
}

// Decode parses a slice payload into a Filter based on the slice type.
// Type matching is lenient: any type containing "bloom" decodes as a bloom
// filter, any containing "hash" as a variable hash list.
func Decode(sliceType string, payload []byte) (Filter, error) {
	typ := strings.ToLower(sliceType)
	switch {
	case strings.Contains(typ, "bloom"):
		return DecodeBloom(payload)
	case strings.Contains(typ, "hash"):
		return DecodeVarHashList(payload)
	default:
		return nil, errors.WithMessagef(ErrUnsupportedType, "type %q", sliceType)
	}
}

// bloomFilter wraps a deserialized bloom filter payload.
type bloomFilter struct {
	f *bloom.BloomFilter
}

// DecodeBloom parses a serialized bloom filter payload.
func DecodeBloom(payload []byte) (Filter, error) {
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bytes.NewReader(payload)); err != nil {
		return nil, errors.WithMessage(err, "malformed bloom filter payload")
	}
	return &bloomFilter{f: f}, nil
}

// EncodeBloom serializes hashes into a bloom filter payload with the given
// false-positive rate. Used by tests and by fixtures.
func EncodeBloom(hashes [][]byte, fpRate float64) ([]byte, error) {
	n := uint(len(hashes))
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(n, fpRate)
	for _, h := range hashes {
		f.Add(h)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func (b *bloomFilter) MightContain(hash []byte) bool {
	return b.f.Test(hash)
}

// varHashList is a sorted list of fixed-width hash prefixes.
// Payload layout: [version:1][width:1][entries: n*width], entries sorted
// lexicographically.
type varHashList struct {
	width   int
	entries []byte
}

// DecodeVarHashList parses a variable hash list payload.
func DecodeVarHashList(payload []byte) (Filter, error) {
	if len(payload) < 2 {
		return nil, errors.New("malformed variable hash list payload")
	}
	width := int(payload[1])
	body := payload[2:]
	if width == 0 || len(body)%width != 0 {
		return nil, errors.Errorf("invalid variable hash list: width %d, body %d", width, len(body))
	}
	return &varHashList{width: width, entries: body}, nil
}

// EncodeVarHashList serializes hash prefixes of the given width.
func EncodeVarHashList(hashes [][]byte, width int) ([]byte, error) {
	if width <= 0 || width > 255 {
		return nil, errors.Errorf("invalid width: %d", width)
	}
	entries := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if len(h) < width {
			return nil, errors.Errorf("hash shorter than width %d", width)
		}
		entries = append(entries, h[:width])
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i], entries[j]) < 0
	})
	out := make([]byte, 0, 2+len(entries)*width)
	out = append(out, 1, byte(width))
	for _, e := range entries {
		out = append(out, e...)
	}
	return out, nil
}

func (v *varHashList) MightContain(hash []byte) bool {
	if len(hash) < v.width {
		return false
	}
	want := hash[:v.width]
	n := len(v.entries) / v.width
	idx := sort.Search(n, func(i int) bool {
		return bytes.Compare(v.entries[i*v.width:(i+1)*v.width], want) >= 0
	})
	return idx < n && bytes.Equal(v.entries[idx*v.width:(idx+1)*v.width], want)
}
