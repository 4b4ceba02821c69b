package sstable

import (
	"github.com/arjunk/go-store/block"
)

// Iterator positions a (block_index, within-block index) pair over an
// SST's entries in ascending key order.
type Iterator struct {
	sst      *SST
	blockIdx int
	blk      *block.Block
	entryIdx int
}

// End returns an iterator past the last entry.
func (s *SST) End() *Iterator {
	return &Iterator{sst: s, blockIdx: len(s.metas)}
}

// SeekFirst returns an iterator at the table's first entry.
func (s *SST) SeekFirst() (*Iterator, error) {
	blk, err := s.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	return &Iterator{sst: s, blockIdx: 0, blk: blk, entryIdx: 0}, nil
}

// seekNextBlock returns an iterator at the first entry of the first
// block at or after idx that is non-empty, or End() if none remains.
func (s *SST) seekNextBlock(idx int) (*Iterator, error) {
	if idx >= len(s.metas) {
		return s.End(), nil
	}
	blk, err := s.ReadBlock(idx)
	if err != nil {
		return nil, err
	}
	if blk.NumEntries() == 0 {
		return s.seekNextBlock(idx + 1)
	}
	return &Iterator{sst: s, blockIdx: idx, blk: blk, entryIdx: 0}, nil
}

// IsEnd reports whether the iterator has no current entry.
func (it *Iterator) IsEnd() bool {
	return it.blockIdx >= len(it.sst.metas)
}

// Key and Value expose the current entry; callers must check !IsEnd()
// first.
func (it *Iterator) Key() []byte   { return it.blk.EntryAt(it.entryIdx).Key }
func (it *Iterator) Value() []byte { return it.blk.EntryAt(it.entryIdx).Value }

// Next advances to the following entry, loading the next block if the
// current one is exhausted, else becoming End().
func (it *Iterator) Next() (*Iterator, error) {
	if it.IsEnd() {
		return it, nil
	}
	if it.entryIdx+1 < it.blk.NumEntries() {
		return &Iterator{sst: it.sst, blockIdx: it.blockIdx, blk: it.blk, entryIdx: it.entryIdx + 1}, nil
	}
	return it.sst.seekNextBlock(it.blockIdx + 1)
}

// RangeByPredicate iterates blocks in order, including every admissible
// block (overlap with f's accepted run), and accumulates the leftmost
// begin and rightmost end among each block's own monotonic range,
// breaking early once the predicate's accepted run has passed (spec
// §4.4). Returns ok=false if no block admits anything.
func (s *SST) RangeByPredicate(f block.PredicateFunc) (begin, end *Iterator, ok bool, err error) {
	for i := 0; i < len(s.metas); i++ {
		m := s.metas[i]
		if f(m.FirstKey) >= 0 && f(m.LastKey) <= 0 {
			blk, rerr := s.ReadBlock(i)
			if rerr != nil {
				return nil, nil, false, rerr
			}
			bBegin, bEnd, bOK := blk.MonotonicPredicateRange(f)
			if !bOK {
				if f(m.FirstKey) < 0 {
					break
				}
				continue
			}
			if begin == nil {
				begin = &Iterator{sst: s, blockIdx: i, blk: blk, entryIdx: bBegin}
			}
			if bEnd >= blk.NumEntries() {
				nxt, nerr := s.seekNextBlock(i + 1)
				if nerr != nil {
					return nil, nil, false, nerr
				}
				end = nxt
			} else {
				end = &Iterator{sst: s, blockIdx: i, blk: blk, entryIdx: bEnd}
			}
		} else if f(m.FirstKey) < 0 {
			break
		}
	}
	if begin == nil {
		return nil, nil, false, nil
	}
	return begin, end, true, nil
}
