package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/klauspost/compress/s2"

	"github.com/arjunk/go-store/block"
	"github.com/arjunk/go-store/bloom"
	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/lsmerr"
)

// SST is an opened on-disk sorted table: its file handle plus resident
// metadata. Blocks are lazily read and decoded through a shared
// BlockCache (spec §4.4).
type SST struct {
	ID         uint64
	file       *os.File
	metaOffset uint32
	dataEnd    uint32 // end of the last data block (where the filter starts)
	metas      []block.Meta
	firstKey   []byte
	lastKey    []byte
	filter     *bloom.Filter
	cache      *cache.BlockCache
}

// Open reads an SST's trailing metadata (meta section, filter, the
// meta/filter offsets) without reading any block, populating the
// in-memory descriptor used for lookups.
func Open(sstID uint64, path string, blockCache *cache.BlockCache) (*SST, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()
	if size < trailerSize {
		f.Close()
		return nil, lsmerr.ErrBadFormat
	}

	trailer := make([]byte, trailerSize)
	if _, err := f.ReadAt(trailer, size-trailerSize); err != nil {
		f.Close()
		return nil, err
	}
	metaOffset := binary.LittleEndian.Uint32(trailer[:])

	metaSection := make([]byte, int64(size)-trailerSize-int64(metaOffset))
	if _, err := f.ReadAt(metaSection, int64(metaOffset)); err != nil {
		f.Close()
		return nil, err
	}
	if len(metaSection) < 8 {
		f.Close()
		return nil, lsmerr.ErrBadFormat
	}
	filterOffset := binary.LittleEndian.Uint32(metaSection[0:4])
	filterLen := binary.LittleEndian.Uint32(metaSection[4:8])

	metas, err := block.DecodeMetas(metaSection[8:])
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(metas) == 0 {
		f.Close()
		return nil, lsmerr.ErrBadFormat
	}

	var filter *bloom.Filter
	if filterLen > 0 {
		filterBytes := make([]byte, filterLen)
		if _, err := f.ReadAt(filterBytes, int64(filterOffset)); err != nil {
			f.Close()
			return nil, err
		}
		filter, err = bloom.Decode(filterBytes)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	return &SST{
		ID:         sstID,
		file:       f,
		metaOffset: metaOffset,
		dataEnd:    filterOffset,
		metas:      metas,
		firstKey:   metas[0].FirstKey,
		lastKey:    metas[len(metas)-1].LastKey,
		filter:     filter,
		cache:      blockCache,
	}, nil
}

func (s *SST) Close() error { return s.file.Close() }

// FirstKey and LastKey bound the key range this table covers.
func (s *SST) FirstKey() []byte { return s.firstKey }
func (s *SST) LastKey() []byte  { return s.lastKey }

// NumBlocks reports how many data blocks this table holds.
func (s *SST) NumBlocks() int { return len(s.metas) }

// FindBlockIndex returns the unique block index i such that
// key <= meta[i].LastKey. Fails with ErrOutOfRange if key falls outside
// [FirstKey, LastKey].
func (s *SST) FindBlockIndex(key []byte) (int, error) {
	if bytes.Compare(key, s.firstKey) < 0 || bytes.Compare(key, s.lastKey) > 0 {
		return 0, lsmerr.ErrOutOfRange
	}
	i := sort.Search(len(s.metas), func(i int) bool {
		return bytes.Compare(key, s.metas[i].LastKey) <= 0
	})
	return i, nil
}

func (s *SST) blockSpan(i int) (off, end int64) {
	off = int64(s.metas[i].Offset)
	if i+1 < len(s.metas) {
		end = int64(s.metas[i+1].Offset)
	} else {
		end = int64(s.dataEnd)
	}
	return off, end
}

// ReadBlock returns the decoded block at index i, consulting (and
// populating) the block cache. Panics-free: a nil cache is a
// configuration error the caller must not make (spec §4.4).
func (s *SST) ReadBlock(i int) (*block.Block, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("sstable: no block cache attached")
	}
	if blk, ok := s.cache.Get(s.ID, i); ok {
		return blk, nil
	}

	off, end := s.blockSpan(i)
	raw := make([]byte, end-off)
	if _, err := s.file.ReadAt(raw, off); err != nil {
		return nil, err
	}

	decompressed, err := s2.Decode(nil, raw)
	if err != nil {
		return nil, lsmerr.ErrBadFormat
	}
	blk, err := block.Decode(decompressed, true)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(s.ID, i, blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// Get returns an iterator positioned at the first entry >= key (which
// may or may not equal key — the caller checks), or an end iterator if
// this table provably does not contain key: a bloom-filter negative, or
// key outside [FirstKey, LastKey] (spec's Engine.Get treats the latter,
// surfaced internally as ErrOutOfRange, as "skip this SST").
func (s *SST) Get(key []byte) (*Iterator, error) {
	if s.filter != nil && !s.filter.MightContain(key) {
		return s.End(), nil
	}

	idx, err := s.FindBlockIndex(key)
	if err != nil {
		if err == lsmerr.ErrOutOfRange {
			return s.End(), nil
		}
		return nil, err
	}

	blk, err := s.ReadBlock(idx)
	if err != nil {
		return nil, err
	}

	n := blk.NumEntries()
	i := sort.Search(n, func(i int) bool {
		return bytes.Compare(blk.EntryAt(i).Key, key) >= 0
	})
	if i == n {
		return s.seekNextBlock(idx + 1)
	}
	return &Iterator{sst: s, blockIdx: idx, blk: blk, entryIdx: i}, nil
}
