// Package bloom implements a per-SST bloom filter so Engine.Get can skip
// tables that provably don't contain a key without touching the block
// cache or the filesystem.
package bloom

import (
	"math"

	"github.com/arjunk/go-store/hash"
)

// Filter is a fixed-size bitset probed by k murmur3 hashes.
type Filter struct {
	bits []bool
	k    int
}

// New sizes a filter for n expected entries at false-positive rate p.
// Returns nil if n or p make for a degenerate (zero-bit or zero-hash)
// filter; callers must treat a nil Filter as "always might contain".
func New(n int, p float64) *Filter {
	if n <= 0 || p <= 0 || p >= 1 {
		return nil
	}

	m := int(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if m == 0 || k == 0 {
		return nil
	}

	return &Filter{bits: make([]bool, m), k: k}
}

// Add records key's membership.
func (f *Filter) Add(key []byte) {
	if f == nil {
		return
	}
	for i := 0; i < f.k; i++ {
		idx := int(hash.Sum32(uint32(i), key)) % len(f.bits)
		if idx < 0 {
			idx += len(f.bits)
		}
		f.bits[idx] = true
	}
}

// MightContain reports whether key could be present. False means
// definitely absent; true means maybe present.
func (f *Filter) MightContain(key []byte) bool {
	if f == nil {
		return true
	}
	for i := 0; i < f.k; i++ {
		idx := int(hash.Sum32(uint32(i), key)) % len(f.bits)
		if idx < 0 {
			idx += len(f.bits)
		}
		if !f.bits[idx] {
			return false
		}
	}
	return true
}

// Encode serializes the bitset to a packed byte slice, one bit per key
// position, preceded by the number of hash functions and bit count so
// Decode can reconstruct without external context.
func (f *Filter) Encode() []byte {
	if f == nil {
		return nil
	}
	buf := make([]byte, 8+(len(f.bits)+7)/8)
	putU32(buf[0:4], uint32(f.k))
	putU32(buf[4:8], uint32(len(f.bits)))
	for i, b := range f.bits {
		if b {
			buf[8+i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

// Decode reconstructs a Filter from bytes produced by Encode. An empty
// slice decodes to nil (no filter attached).
func Decode(data []byte) (*Filter, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 8 {
		return nil, errBadFormat
	}
	k := int(getU32(data[0:4]))
	m := int(getU32(data[4:8]))
	payload := data[8:]
	if len(payload) < (m+7)/8 {
		return nil, errBadFormat
	}

	f := &Filter{bits: make([]bool, m), k: k}
	for i := 0; i < m; i++ {
		if payload[i/8]&(1<<uint(i%8)) != 0 {
			f.bits[i] = true
		}
	}
	return f, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
