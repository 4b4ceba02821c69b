package memtable

import (
	"sync"

	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/iter"
	"github.com/arjunk/go-store/skiplist"
	"github.com/arjunk/go-store/sstable"
)

// frozenTable pairs an immutable skip list with the WAL generation that
// logged it, so FlushLast can remove exactly that segment once (and
// only once) the table has been durably written into an SST.
type frozenTable struct {
	table  *skiplist.SkipList
	walGen int
}

// Memtable aggregates a writable `current` skip list and a LIFO queue
// of immutable frozen ones, with independent reader-writer locks over
// each (spec §5): acquisition order is always current-then-frozen to
// avoid deadlock.
type Memtable struct {
	currentMu sync.RWMutex
	current   *skiplist.SkipList
	wal       *WAL
	walGen    int
	walDir    string
	walPrefix string

	frozenMu    sync.RWMutex
	frozen      []frozenTable // front = newest
	frozenBytes int

	perMemLimit int
	maxLevel    int
}

// New constructs a memtable rooted at walDir/walPrefix.%06d, recovering
// any segments left by a prior, uncleanly-stopped process: every
// generation but the newest was already sealed by a freeze before the
// crash and becomes a frozen table; the newest generation holds what
// was still `current` and is replayed into a fresh current, with its
// segment reopened for further appends rather than replaced.
func New(walDir, walPrefix string, perMemLimit, maxLevel int) (*Memtable, error) {
	gens, err := scanWALGenerations(walDir, walPrefix)
	if err != nil {
		return nil, err
	}

	m := &Memtable{
		perMemLimit: perMemLimit,
		maxLevel:    maxLevel,
		walDir:      walDir,
		walPrefix:   walPrefix,
	}

	if len(gens) == 0 {
		wal, err := NewWAL(walDir, walFileName(walPrefix, 0))
		if err != nil {
			return nil, err
		}
		m.wal = wal
		m.current = skiplist.New(maxLevel, 0.5)
		return m, nil
	}

	for _, gen := range gens[:len(gens)-1] {
		sealed, err := NewWAL(walDir, walFileName(walPrefix, gen))
		if err != nil {
			return nil, err
		}
		records, err := sealed.Replay()
		if err != nil {
			return nil, err
		}
		if err := sealed.Close(); err != nil {
			return nil, err
		}

		table := skiplist.New(maxLevel, 0.5)
		for _, rec := range records {
			table.Put(rec.Key, rec.Value)
		}
		m.frozen = append([]frozenTable{{table: table, walGen: gen}}, m.frozen...)
		m.frozenBytes += table.UsedBytes()
	}

	lastGen := gens[len(gens)-1]
	wal, err := NewWAL(walDir, walFileName(walPrefix, lastGen))
	if err != nil {
		return nil, err
	}
	records, err := wal.Replay()
	if err != nil {
		return nil, err
	}

	m.current = skiplist.New(maxLevel, 0.5)
	for _, rec := range records {
		m.current.Put(rec.Key, rec.Value)
	}
	m.wal = wal
	m.walGen = lastGen
	return m, nil
}

// Put inserts key=value into `current`, logs it to the WAL, and freezes
// `current` if it has grown past the per-memtable size limit.
func (m *Memtable) Put(key, value []byte) error {
	return m.put(key, value, false)
}

// Remove logs a tombstone for key — a Put of an empty value — so the
// deletion propagates through frozen tables and SSTs (spec §4.1).
func (m *Memtable) Remove(key []byte) error {
	return m.put(key, nil, true)
}

func (m *Memtable) put(key, value []byte, tombstone bool) error {
	m.currentMu.Lock()
	if err := m.wal.Append(WALRecord{Key: key, Value: value, Tombstone: tombstone}); err != nil {
		m.currentMu.Unlock()
		return err
	}
	m.current.Put(key, value)

	var toFreeze *frozenTable
	if m.current.UsedBytes() > m.perMemLimit {
		sealedGen := m.walGen
		if err := m.wal.Close(); err != nil {
			m.currentMu.Unlock()
			return err
		}
		m.walGen++
		newWAL, err := NewWAL(m.walDir, walFileName(m.walPrefix, m.walGen))
		if err != nil {
			m.currentMu.Unlock()
			return err
		}
		toFreeze = &frozenTable{table: m.current, walGen: sealedGen}
		m.wal = newWAL
		m.current = skiplist.New(m.maxLevel, 0.5)
	}
	m.currentMu.Unlock()

	if toFreeze != nil {
		m.frozenMu.Lock()
		m.frozen = append([]frozenTable{*toFreeze}, m.frozen...)
		m.frozenBytes += toFreeze.table.UsedBytes()
		m.frozenMu.Unlock()
	}
	return nil
}

// PutBatch applies puts in order within a single call (no cross-key
// atomicity guarantee beyond this ordering, per spec §1 Non-goals).
func (m *Memtable) PutBatch(entries []skiplist.Entry) error {
	for _, e := range entries {
		if err := m.Put(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// RemoveBatch applies removes in order within a single call.
func (m *Memtable) RemoveBatch(keys [][]byte) error {
	for _, k := range keys {
		if err := m.Remove(k); err != nil {
			return err
		}
	}
	return nil
}

// Get returns key's value (which may be empty, denoting a tombstone)
// and whether it was found anywhere in current or frozen, newest first.
func (m *Memtable) Get(key []byte) ([]byte, bool) {
	m.currentMu.RLock()
	if v, ok := m.current.Get(key); ok {
		m.currentMu.RUnlock()
		return v, true
	}
	m.currentMu.RUnlock()

	m.frozenMu.RLock()
	defer m.frozenMu.RUnlock()
	for _, t := range m.frozen {
		if v, ok := t.table.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// TotalBytes reports used bytes across current and the frozen queue,
// the size Engine compares against LSM_TOL_MEM_SIZE_LIMIT.
func (m *Memtable) TotalBytes() int {
	m.currentMu.RLock()
	cur := m.current.UsedBytes()
	m.currentMu.RUnlock()

	m.frozenMu.RLock()
	frozen := m.frozenBytes
	m.frozenMu.RUnlock()

	return cur + frozen
}

// FreezeCurrent manually pushes `current` onto the frozen queue behind
// a freshly rotated WAL segment, regardless of size. A no-op if current
// holds nothing.
func (m *Memtable) FreezeCurrent() error {
	m.currentMu.Lock()
	if len(m.current.Dump()) == 0 {
		m.currentMu.Unlock()
		return nil
	}

	old := m.current
	sealedGen := m.walGen
	if err := m.wal.Close(); err != nil {
		m.currentMu.Unlock()
		return err
	}
	m.walGen++
	newWAL, err := NewWAL(m.walDir, walFileName(m.walPrefix, m.walGen))
	if err != nil {
		m.currentMu.Unlock()
		return err
	}
	m.wal = newWAL
	m.current = skiplist.New(m.maxLevel, 0.5)
	m.currentMu.Unlock()

	m.frozenMu.Lock()
	m.frozen = append([]frozenTable{{table: old, walGen: sealedGen}}, m.frozen...)
	m.frozenBytes += old.UsedBytes()
	m.frozenMu.Unlock()
	return nil
}

// FlushLast consumes the oldest frozen table (freezing `current` first
// if the frozen queue is empty but current holds data), feeds its
// entries in ascending key order to builder, and returns the resulting
// SST. Only the WAL segment that logged exactly this table is removed
// once the SST build succeeds; `current`'s segment and any other still
// queued frozen table's segment are untouched, so a crash right after
// this call can still replay everything not yet in an SST. Returns
// nil, nil if there is nothing to flush.
func (m *Memtable) FlushLast(builder *sstable.Builder, path string, sstID uint64, blockCache *cache.BlockCache) (*sstable.SST, error) {
	m.currentMu.RLock()
	currentEmpty := len(m.current.Dump()) == 0
	m.currentMu.RUnlock()

	m.frozenMu.RLock()
	noFrozen := len(m.frozen) == 0
	m.frozenMu.RUnlock()

	if noFrozen {
		if currentEmpty {
			return nil, nil
		}
		if err := m.FreezeCurrent(); err != nil {
			return nil, err
		}
	}

	m.frozenMu.Lock()
	if len(m.frozen) == 0 {
		m.frozenMu.Unlock()
		return nil, nil
	}
	oldest := m.frozen[len(m.frozen)-1]
	m.frozen = m.frozen[:len(m.frozen)-1]
	m.frozenBytes -= oldest.table.UsedBytes()
	m.frozenMu.Unlock()

	for _, e := range oldest.table.Dump() {
		if err := builder.Add(e.Key, e.Value); err != nil {
			return nil, err
		}
	}

	builder.SetSourceWALGen(oldest.walGen)
	sst, err := builder.Build(sstID, path, blockCache)
	if err != nil {
		return nil, err
	}

	if err := removeWALGeneration(m.walDir, m.walPrefix, oldest.walGen); err != nil {
		return nil, err
	}
	return sst, nil
}

// DiscardFlushedGenerations drops any recovered frozen table whose WAL
// generation is in flushed — already known, via a live SST's own
// walgen marker, to be durably captured on disk — and removes that
// now-redundant segment file. Called once from Engine.Open right after
// New has replayed the WAL directory, closing the window FlushLast
// otherwise leaves between an SST's fsync and its own segment removal:
// without this, a crash in exactly that window resurrects the
// generation as a second frozen table here, which a later Flush would
// write out as a genuinely duplicate SST.
func (m *Memtable) DiscardFlushedGenerations(flushed map[int]bool) error {
	if len(flushed) == 0 {
		return nil
	}

	m.frozenMu.Lock()
	defer m.frozenMu.Unlock()

	kept := make([]frozenTable, 0, len(m.frozen))
	for _, t := range m.frozen {
		if flushed[t.walGen] {
			if err := removeWALGeneration(m.walDir, m.walPrefix, t.walGen); err != nil {
				return err
			}
			m.frozenBytes -= t.table.UsedBytes()
			continue
		}
		kept = append(kept, t)
	}
	m.frozen = kept
	return nil
}

// Close releases the current WAL segment's file handle. Sealed frozen
// segments are never held open, so there is nothing else to release.
func (m *Memtable) Close() error { return m.wal.Close() }

// Begin materializes a point-in-time snapshot of current and every
// frozen table into a HeapIterator, tagging entries so smaller table_idx
// (0 for current, 1.. for frozen newest-first) wins ties against older
// versions of the same key.
func (m *Memtable) Begin() *iter.HeapIterator {
	return iter.NewHeapIterator(m.snapshotItems(func(s *skiplist.SkipList) []skiplist.Entry {
		return s.Dump()
	}))
}

// PrefixIters builds a HeapIterator over only the keys with prefix p
// across current and frozen tables.
func (m *Memtable) PrefixIters(p []byte) *iter.HeapIterator {
	return iter.NewHeapIterator(m.snapshotItems(func(s *skiplist.SkipList) []skiplist.Entry {
		begin, end := s.PrefixRange(p)
		return collect(begin, end)
	}))
}

// MonotonicPredicateIters builds a HeapIterator over the contiguous key
// run f accepts across current and frozen tables. ok is false if every
// table yields nothing.
func (m *Memtable) MonotonicPredicateIters(f skiplist.PredicateFunc) (*iter.HeapIterator, bool) {
	var any bool
	items := m.snapshotItems(func(s *skiplist.SkipList) []skiplist.Entry {
		begin, end, ok := s.MonotonicPredicateRange(f)
		if !ok {
			return nil
		}
		any = true
		return collect(begin, end)
	})
	if !any {
		return nil, false
	}
	return iter.NewHeapIterator(items), true
}

func collect(begin, end skiplist.Iterator) []skiplist.Entry {
	var out []skiplist.Entry
	for it := begin; !it.Equal(end); it = it.Next() {
		out = append(out, it.Entry())
	}
	return out
}

func (m *Memtable) snapshotItems(dump func(*skiplist.SkipList) []skiplist.Entry) []iter.SearchItem {
	m.currentMu.RLock()
	m.frozenMu.RLock()
	defer m.currentMu.RUnlock()
	defer m.frozenMu.RUnlock()

	var items []iter.SearchItem
	for _, e := range dump(m.current) {
		items = append(items, iter.SearchItem{Key: e.Key, Value: e.Value, Idx: 0})
	}
	for i, t := range m.frozen {
		for _, e := range dump(t.table) {
			items = append(items, iter.SearchItem{Key: e.Key, Value: e.Value, Idx: i + 1})
		}
	}
	return items
}
