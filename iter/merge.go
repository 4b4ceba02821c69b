package iter

import "bytes"

// MergeIterator fuses a memtable-snapshot HeapIterator and an L0-SSTs
// HeapIterator into one ascending, dedup-aware stream. The memtable
// always wins ties: after every step, the SST iterator is fast-forwarded
// past any key equal to the memtable iterator's current key.
type MergeIterator struct {
	mem *HeapIterator
	sst *HeapIterator

	chooseMem bool
}

// NewMergeIterator constructs a merged view over mem and sst, each
// already tombstone-drained (HeapIterator's invariant).
func NewMergeIterator(mem, sst *HeapIterator) *MergeIterator {
	m := &MergeIterator{mem: mem, sst: sst}
	m.skipSSTPastMem()
	m.chooseMem = m.chooseMemTable()
	return m
}

func (m *MergeIterator) skipSSTPastMem() {
	for !m.mem.IsEnd() && !m.sst.IsEnd() && bytes.Equal(m.sst.Key(), m.mem.Key()) {
		m.sst.Next()
	}
}

func (m *MergeIterator) chooseMemTable() bool {
	if m.mem.IsEnd() {
		return false
	}
	if m.sst.IsEnd() {
		return true
	}
	return bytes.Compare(m.mem.Key(), m.sst.Key()) < 0
}

// IsEnd reports whether both sources are exhausted.
func (m *MergeIterator) IsEnd() bool { return m.mem.IsEnd() && m.sst.IsEnd() }

// Key and Value expose the current entry; callers must check !IsEnd()
// first.
func (m *MergeIterator) Key() []byte {
	if m.chooseMem {
		return m.mem.Key()
	}
	return m.sst.Key()
}

func (m *MergeIterator) Value() []byte {
	if m.chooseMem {
		return m.mem.Value()
	}
	return m.sst.Value()
}

// Next advances whichever source produced the current entry, then
// re-establishes the mem-wins-ties invariant.
func (m *MergeIterator) Next() {
	if m.chooseMem {
		m.mem.Next()
	} else {
		m.sst.Next()
	}
	m.skipSSTPastMem()
	m.chooseMem = m.chooseMemTable()
}
