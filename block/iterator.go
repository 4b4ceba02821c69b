package block

// Iterator walks a Block's entries by index. Equality compares block
// identity and index, matching the reference design's BlockIterator.
type Iterator struct {
	blk *Block
	idx int
}

// NewIterator returns an iterator positioned at idx (which may equal
// NumEntries(), denoting the end).
func NewIterator(b *Block, idx int) Iterator {
	return Iterator{blk: b, idx: idx}
}

func (it Iterator) End() bool { return it.idx >= it.blk.NumEntries() }

func (it Iterator) Entry() Entry { return it.blk.entryAt(it.idx) }

func (it Iterator) Next() Iterator { return Iterator{blk: it.blk, idx: it.idx + 1} }

func (it Iterator) Equal(other Iterator) bool {
	return it.blk == other.blk && it.idx == other.idx
}

// Index exposes the current offset-table position, used by SSTIterator
// to track within-block position across block boundaries.
func (it Iterator) Index() int { return it.idx }
