// Package block implements the smallest independently-decodable unit of
// an SST: an ordered run of entries with an offset index, plus the
// block-meta codec describing a block's placement within an SST.
package block

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/arjunk/go-store/hash"
	"github.com/arjunk/go-store/lsmerr"
)

// Entry is a decoded (key, value) pair read back out of a block.
type Entry struct {
	Key   []byte
	Value []byte
}

func (e Entry) IsTombstone() bool { return len(e.Value) == 0 }

// Block holds entries appended in strictly ascending key order by the
// caller (SSTBuilder enforces this). Add fails only when the block is
// already non-empty and adding would exceed capacity.
type Block struct {
	data     []byte
	offsets  []uint16
	capacity int
}

// New constructs an empty block with the given soft byte-capacity.
func New(capacity int) *Block {
	return &Block{capacity: capacity}
}

// AddEntry appends key/value to the block. Returns false and leaves the
// block unchanged iff the block is non-empty and this entry would push
// data past capacity; the first entry is always accepted regardless of
// size.
func (b *Block) AddEntry(key, value []byte) bool {
	entryLen := 2 + len(key) + 2 + len(value)
	if len(b.offsets) > 0 && len(b.data)+entryLen > b.capacity {
		return false
	}

	off := uint16(len(b.data))
	buf := make([]byte, 0, entryLen)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(key)))
	buf = append(buf, key...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(value)))
	buf = append(buf, value...)

	b.data = append(b.data, buf...)
	b.offsets = append(b.offsets, off)
	return true
}

// NumEntries reports how many entries the block currently holds.
func (b *Block) NumEntries() int { return len(b.offsets) }

func (b *Block) entryAt(idx int) Entry {
	off := int(b.offsets[idx])
	klen := int(binary.LittleEndian.Uint16(b.data[off:]))
	off += 2
	key := b.data[off : off+klen]
	off += klen
	vlen := int(binary.LittleEndian.Uint16(b.data[off:]))
	off += 2
	value := b.data[off : off+vlen]
	return Entry{Key: key, Value: value}
}

func (b *Block) keyAt(idx int) []byte {
	off := int(b.offsets[idx])
	klen := int(binary.LittleEndian.Uint16(b.data[off:]))
	return b.data[off+2 : off+2+klen]
}

// Encode serializes the block to its wire form: data || offsets (u16
// each, little-endian) || num_entries (u16). No hash is included here —
// the SSTBuilder appends the integrity hash as a distinct trailing step
// (spec §4.2).
func (b *Block) Encode() []byte {
	out := make([]byte, 0, len(b.data)+len(b.offsets)*2+2)
	out = append(out, b.data...)
	for _, off := range b.offsets {
		out = binary.LittleEndian.AppendUint16(out, off)
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(b.offsets)))
	return out
}

// Decode parses a block from its wire form, reading backward from the
// tail: num_entries, then the offsets table, then the data prefix. If
// verifyHash, the trailing 4 bytes are treated as a checksum over
// everything preceding them and must match, else ErrBadFormat.
func Decode(buf []byte, verifyHash bool) (*Block, error) {
	body := buf
	var want uint32
	if verifyHash {
		if len(body) < 4 {
			return nil, lsmerr.ErrBadFormat
		}
		n := len(body) - 4
		want = binary.LittleEndian.Uint32(body[n:])
		body = body[:n]
	}
	if verifyHash && hash.Checksum(body) != want {
		return nil, lsmerr.ErrBadFormat
	}

	if len(body) < 2 {
		return nil, lsmerr.ErrBadFormat
	}
	numEntries := int(binary.LittleEndian.Uint16(body[len(body)-2:]))
	body = body[:len(body)-2]

	offsetsBytes := 2 * numEntries
	if len(body) < offsetsBytes {
		return nil, lsmerr.ErrBadFormat
	}
	offsetsStart := len(body) - offsetsBytes
	offsets := make([]uint16, numEntries)
	for i := 0; i < numEntries; i++ {
		offsets[i] = binary.LittleEndian.Uint16(body[offsetsStart+2*i:])
	}

	data := body[:offsetsStart]
	return &Block{data: data, offsets: offsets, capacity: len(data)}, nil
}

// FindIndex binary-searches for key, returning its offset-table index
// or ok=false if absent.
func (b *Block) FindIndex(key []byte) (int, bool) {
	n := len(b.offsets)
	i := sort.Search(n, func(i int) bool {
		return bytes.Compare(b.keyAt(i), key) >= 0
	})
	if i < n && bytes.Compare(b.keyAt(i), key) == 0 {
		return i, true
	}
	return 0, false
}

// FindValue returns key's value, or ok=false if absent.
func (b *Block) FindValue(key []byte) ([]byte, bool) {
	idx, ok := b.FindIndex(key)
	if !ok {
		return nil, false
	}
	return b.entryAt(idx).Value, true
}

// EntryAt returns the decoded entry at index idx, which must be in
// [0, NumEntries()).
func (b *Block) EntryAt(idx int) Entry { return b.entryAt(idx) }

// PredicateFunc is monotone non-increasing over key order: >0 means
// "target lies right of key", <0 "left of key", 0 "accept".
type PredicateFunc func(key []byte) int

// MonotonicPredicateRange returns [begin, end) offset-table indices
// covering the contiguous run f accepts, or ok=false if f accepts
// nothing in this block. begin is the first index with f(key)<=0 that
// also has f(key)==0; end is the first index after begin where f(key)<0.
func (b *Block) MonotonicPredicateRange(f PredicateFunc) (begin, end int, ok bool) {
	n := len(b.offsets)
	left := sort.Search(n, func(i int) bool {
		return f(b.keyAt(i)) <= 0
	})
	if left == n || f(b.keyAt(left)) != 0 {
		return 0, 0, false
	}
	right := left + sort.Search(n-left, func(i int) bool {
		return f(b.keyAt(left+i)) < 0
	})
	return left, right, true
}
