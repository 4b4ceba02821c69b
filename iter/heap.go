// Package iter implements the merging iterator stack that fuses a
// memtable snapshot and all L0 SSTs into a single ordered, dedup-aware
// key stream: a k-way HeapIterator per source group, and a MergeIterator
// that fuses the memtable's and L0's HeapIterators with the memtable
// always winning ties.
//
// Grounded on original_source/src/memoryTable/HeapIterator.cpp and
// .../lsm/MergeIterator.cpp — the teacher repo has no merge iterator of
// its own (its SSManager.Get loops levels linearly instead).
package iter

import (
	"bytes"
	"container/heap"
)

// SearchItem is one candidate entry from one source (a memtable table or
// an SST), tagged with idx so ties can be broken by recency: a smaller
// idx represents a newer source.
type SearchItem struct {
	Key   []byte
	Value []byte
	Idx   int
}

func (s SearchItem) IsTombstone() bool { return len(s.Value) == 0 }

// itemHeap orders by (key asc, idx asc) — smaller idx (newer source)
// wins ties.
type itemHeap []SearchItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].Key, h[j].Key)
	if c != 0 {
		return c < 0
	}
	return h[i].Idx < h[j].Idx
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(SearchItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// HeapIterator is a k-way merger over SearchItems that suppresses
// tombstones and older-version duplicates: after every step, either the
// iterator is empty or its current key is distinct from the previously
// yielded key and carries a non-empty value.
type HeapIterator struct {
	h *itemHeap
}

// NewHeapIterator drains tombstones immediately at construction so the
// first observable key (if any) is already live.
func NewHeapIterator(items []SearchItem) *HeapIterator {
	h := make(itemHeap, 0, len(items))
	heap.Init(&h)
	for _, it := range items {
		heap.Push(&h, it)
	}
	it := &HeapIterator{h: &h}
	it.drainTombstones()
	return it
}

func (it *HeapIterator) drainTombstones() {
	for it.h.Len() > 0 && (*it.h)[0].IsTombstone() {
		deletedKey := (*it.h)[0].Key
		for it.h.Len() > 0 && bytes.Equal((*it.h)[0].Key, deletedKey) {
			heap.Pop(it.h)
		}
	}
}

// IsEnd reports whether any entries remain.
func (it *HeapIterator) IsEnd() bool { return it.h.Len() == 0 }

// Key and Value expose the current entry; callers must check !IsEnd()
// first.
func (it *HeapIterator) Key() []byte   { return (*it.h)[0].Key }
func (it *HeapIterator) Value() []byte { return (*it.h)[0].Value }

// Next pops the current top, every older version sharing its key, then
// drains any newly-exposed tombstone run.
func (it *HeapIterator) Next() {
	if it.h.Len() == 0 {
		return
	}
	top := heap.Pop(it.h).(SearchItem)
	for it.h.Len() > 0 && bytes.Equal((*it.h)[0].Key, top.Key) {
		heap.Pop(it.h)
	}
	it.drainTombstones()
}
