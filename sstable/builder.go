// Package sstable implements the on-disk sorted-string table: its
// binary layout, a streaming builder fed strictly ascending keys, and a
// reader supporting point lookups, block iteration, and predicate
// range scans, lazily reading blocks through a shared BlockCache.
package sstable

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/s2"

	"github.com/arjunk/go-store/block"
	"github.com/arjunk/go-store/bloom"
	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/hash"
	"github.com/arjunk/go-store/lsmerr"
)

// trailerSize is the 4-byte meta_offset footer: the file's last
// trailerSize bytes are always exactly meta_offset, nothing else. The
// bloom filter's own placement (filter_offset, filter_len) is a
// domain-stack addition, but it rides inside the meta section itself
// (see block.EncodeMetas's caller in Build) rather than in the trailer,
// so that last-4-bytes contract never has to grow (see DESIGN.md).
const trailerSize = 4

// Builder accumulates strictly ascending entries into blocks, finishing
// each one at the configured soft size cap, and emits a complete SST
// file on Build.
type Builder struct {
	blockSize  int
	cur        *block.Block
	curFirst   []byte
	curLast    []byte
	metas      []block.Meta
	buf        bytes.Buffer
	filter     *bloom.Filter
	entryCount int
	walGen     int
}

// NewBuilder constructs a builder targeting blockSize-byte blocks
// (LSM_BLOCK_SIZE, spec §6) and a bloom filter sized for expectedEntries
// at the given false-positive rate.
func NewBuilder(blockSize, expectedEntries int, filterFPRate float64) *Builder {
	return &Builder{
		blockSize: blockSize,
		cur:       block.New(blockSize),
		filter:    bloom.New(expectedEntries, filterFPRate),
		walGen:    -1,
	}
}

// SetSourceWALGen records which memtable WAL generation this build
// drains, so Build can drop a small durable marker beside the SST
// before the SST itself exists. A crash between the SST's own fsync and
// the memtable's removal of that WAL segment otherwise leaves the
// segment's data resurrectable as a second, duplicate frozen table on
// the next Open; the marker lets Open recognize the segment is already
// captured here and discard it instead (see DESIGN.md). Builders not
// fed by a memtable flush never call this and no marker is written.
func (b *Builder) SetSourceWALGen(gen int) {
	b.walGen = gen
}

// Add feeds the next entry, which must sort strictly after every
// previously added key (the caller's responsibility per spec §4.4).
func (b *Builder) Add(key, value []byte) error {
	if b.entryCount == 0 {
		b.curFirst = key
	}
	if !b.cur.AddEntry(key, value) {
		if err := b.finishBlock(); err != nil {
			return err
		}
		b.cur = block.New(b.blockSize)
		b.curFirst = key
		if !b.cur.AddEntry(key, value) {
			return lsmerr.ErrBadFormat
		}
	}
	b.curLast = key
	b.filter.Add(key)
	b.entryCount++
	return nil
}

// finishBlock encodes the current block (raw||hash), s2-compresses the
// result as a transparent storage transport, and appends it to the
// output buffer, recording its BlockMeta.
func (b *Builder) finishBlock() error {
	if b.cur.NumEntries() == 0 {
		return nil
	}
	raw := b.cur.Encode()
	var h [4]byte
	binary.LittleEndian.PutUint32(h[:], hash.Checksum(raw))
	rawWithHash := append(append([]byte(nil), raw...), h[:]...)

	compressed := s2.Encode(nil, rawWithHash)
	offset := uint32(b.buf.Len())
	b.buf.Write(compressed)

	b.metas = append(b.metas, block.Meta{
		Offset:   offset,
		FirstKey: b.curFirst,
		LastKey:  b.curLast,
	})
	return nil
}

// Build finishes any pending block, writes the filter and meta section,
// and persists the whole buffer to path via a single create-and-write
// plus fsync, returning an opened SST. Fails with ErrEmpty if no
// entries were ever added.
func (b *Builder) Build(sstID uint64, path string, blockCache *cache.BlockCache) (*SST, error) {
	if err := b.finishBlock(); err != nil {
		return nil, err
	}
	if len(b.metas) == 0 {
		return nil, lsmerr.ErrEmpty
	}

	filterBytes := b.filter.Encode()
	filterOffset := uint32(b.buf.Len())
	b.buf.Write(filterBytes)

	// The meta section leads with the filter's own placement (an
	// extension the block-meta encoding has no need to know about),
	// followed by the block meta vector proper. Only meta_offset itself
	// is pinned to the file's last 4 bytes.
	metaOffset := uint32(b.buf.Len())
	var filterHeader [8]byte
	binary.LittleEndian.PutUint32(filterHeader[0:4], filterOffset)
	binary.LittleEndian.PutUint32(filterHeader[4:8], uint32(len(filterBytes)))
	b.buf.Write(filterHeader[:])
	b.buf.Write(block.EncodeMetas(b.metas))

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], metaOffset)
	b.buf.Write(trailer[:])

	// Written and fsynced strictly before the SST file itself, so the
	// SST existing on disk always implies the marker does too — the
	// reverse never needs to hold, since a marker with no matching SST
	// is simply ignored on the next Open (and silently overwritten if
	// this same sstID is retried).
	if b.walGen >= 0 {
		if err := writeWALGenMarker(path, b.walGen); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(b.buf.Bytes()); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return Open(sstID, path, blockCache)
}
