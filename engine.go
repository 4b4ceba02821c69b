package gostore

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arjunk/go-store/block"
	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/internal/config"
	"github.com/arjunk/go-store/iter"
	"github.com/arjunk/go-store/lsmerr"
	"github.com/arjunk/go-store/memtable"
	"github.com/arjunk/go-store/skiplist"
	"github.com/arjunk/go-store/sstable"
)

// PredicateFunc is monotone non-increasing in key order: positive means
// "target lies right of key", negative "left of key", zero "accept".
// The same shape is used by the skiplist and block packages internally;
// PredicateRange is the one place a caller supplies it directly.
type PredicateFunc func(key []byte) int

// Engine is the top-level façade coordinating the memtable, L0 SSTs,
// and the shared block cache (spec §4.8). A single reader-writer lock
// guards l0IDs and ssts; flushMu additionally serializes Flush end to
// end, fixing the spec's Open Question about a new_sst_id race between
// concurrent flushes.
type Engine struct {
	dataDir  string
	cfg      config.Config
	log      *zap.SugaredLogger
	mt       *memtable.Memtable
	cache    *cache.BlockCache
	mu       sync.RWMutex
	flushMu  sync.Mutex
	l0IDs    []uint64 // newest first
	ssts     map[uint64]*sstable.SST
}

// Open constructs an Engine rooted at dataDir, creating it if absent,
// recovering the memtable from its WAL and L0 from the union of the
// manifest and a directory scan of sst_NNNN files, and attaching a fresh
// block cache per the configured tunables.
func Open(dataDir string, opts Options) (*Engine, error) {
	opts, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("gostore: data dir %q: %w", dataDir, err)
	}

	mt, err := memtable.New(dataDir, "wal.log", opts.Config.PerMemtableSizeLimit, opts.Config.SkipListMaxLevel)
	if err != nil {
		return nil, fmt.Errorf("gostore: memtable recovery: %w", err)
	}

	blockCache := cache.New(opts.Config.BlockCacheCapacity, opts.Config.BlockCacheK)

	manifestIDs, hadManifest, err := readManifest(dataDir)
	if err != nil {
		return nil, err
	}
	dirIDs, err := recoverFromDirectory(dataDir)
	if err != nil {
		return nil, err
	}
	// Always reconciled against the directory, never trusted alone: an
	// SST can be fully written and fsynced before a crash interrupts the
	// manifest rewrite meant to publish it, leaving it on disk but
	// unlisted (spec §4.8, see unionIDsDescending).
	ids := unionIDsDescending(manifestIDs, dirIDs)

	ssts := make(map[uint64]*sstable.SST, len(ids))
	// Every WAL generation a live SST's own marker names as its source
	// (spec §4.8) — reconciled the same way unionIDsDescending
	// reconciles SST ids, but against each SST's own fsynced marker
	// rather than the manifest, since the crash window this closes is
	// exactly the one where the manifest was never rewritten at all.
	flushedWALGens := make(map[int]bool)
	var liveIDs []uint64
	for _, id := range ids {
		path := sstPath(dataDir, id)
		sst, err := sstable.Open(id, path, blockCache)
		if err != nil {
			opts.Logger.Warnw("skipping unreadable sst on open", "sst_id", id, "err", err)
			continue
		}
		ssts[id] = sst
		liveIDs = append(liveIDs, id)
		if gen, ok, err := sstable.ReadWALGenMarker(path); err == nil && ok {
			flushedWALGens[gen] = true
		}
	}

	if err := mt.DiscardFlushedGenerations(flushedWALGens); err != nil {
		return nil, fmt.Errorf("gostore: wal reconciliation: %w", err)
	}

	if !hadManifest || len(liveIDs) != len(manifestIDs) {
		if err := writeManifest(dataDir, liveIDs); err != nil {
			opts.Logger.Warnw("manifest rewrite failed during recovery reconciliation", "err", err)
		}
	}

	e := &Engine{
		dataDir: dataDir,
		cfg:     opts.Config,
		log:     opts.Logger,
		mt:      mt,
		cache:   blockCache,
		l0IDs:   liveIDs,
		ssts:    ssts,
	}
	e.log.Infow("engine opened", "data_dir", dataDir, "l0_count", len(liveIDs), "manifest_found", hadManifest)
	return e, nil
}

// Put inserts key=value, triggering an engine-wide Flush if total
// memtable bytes now reach the configured limit.
func (e *Engine) Put(key, value []byte) error {
	if err := e.mt.Put(key, value); err != nil {
		return err
	}
	if e.mt.TotalBytes() >= e.cfg.TotalMemtableSizeLimit {
		return e.Flush()
	}
	return nil
}

// Remove logs a tombstone for key.
func (e *Engine) Remove(key []byte) error {
	if err := e.mt.Remove(key); err != nil {
		return err
	}
	if e.mt.TotalBytes() >= e.cfg.TotalMemtableSizeLimit {
		return e.Flush()
	}
	return nil
}

// Get returns key's value, or ErrNotFound if absent or tombstoned
// anywhere in the memtable or L0 (spec §2 read path: memtable first,
// then L0 SSTs newest-first; first hit wins, empty value means
// tombstone).
func (e *Engine) Get(key []byte) ([]byte, error) {
	if v, found := e.mt.Get(key); found {
		if len(v) == 0 {
			return nil, lsmerr.ErrNotFound
		}
		return v, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.l0IDs {
		sst := e.ssts[id]
		it, err := sst.Get(key)
		if err != nil {
			return nil, err
		}
		if it.IsEnd() || !bytes.Equal(it.Key(), key) {
			continue
		}
		if len(it.Value()) == 0 {
			return nil, lsmerr.ErrNotFound
		}
		return it.Value(), nil
	}
	return nil, lsmerr.ErrNotFound
}

// Flush drains the oldest frozen memtable (freezing `current` first if
// needed) into a new SST and publishes it as the newest L0 table. A
// no-op if the memtable is empty. The whole id-allocation-through-publish
// sequence runs under flushMu so concurrent Flush calls cannot race on
// new_sst_id (spec §9 Open Question).
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.RLock()
	newID := uint64(0)
	if len(e.l0IDs) > 0 {
		newID = e.l0IDs[0] + 1
	}
	e.mu.RUnlock()

	builder := sstable.NewBuilder(e.cfg.BlockSize, e.cfg.FilterExpectedEntries, e.cfg.FilterFalsePositiveRate)
	sst, err := e.mt.FlushLast(builder, sstPath(e.dataDir, newID), newID, e.cache)
	if err != nil {
		return fmt.Errorf("gostore: flush: %w", err)
	}
	if sst == nil {
		return nil
	}

	e.mu.Lock()
	e.l0IDs = append([]uint64{newID}, e.l0IDs...)
	e.ssts[newID] = sst
	ids := append([]uint64(nil), e.l0IDs...)
	e.mu.Unlock()

	if err := writeManifest(e.dataDir, ids); err != nil {
		e.log.Warnw("manifest write failed after flush", "sst_id", newID, "err", err)
	}
	e.log.Infow("flushed memtable to sst", "sst_id", newID, "build_id", uuid.New().String())
	return nil
}

// FlushAll drains every frozen (and, if non-empty, current) memtable
// into SSTs, looping Flush until the memtable is empty.
func (e *Engine) FlushAll() error {
	for e.mt.TotalBytes() > 0 {
		before := e.mt.TotalBytes()
		if err := e.Flush(); err != nil {
			return err
		}
		if e.mt.TotalBytes() == before {
			break
		}
	}
	return nil
}

// Begin returns a MergeIterator over a point-in-time snapshot of the
// memtable and the set of L0 SSTs present at the time of the call (spec
// §5: SSTs produced after Begin are not observed by this scan).
func (e *Engine) Begin() *iter.MergeIterator {
	memIter := e.mt.Begin()

	e.mu.RLock()
	ids := append([]uint64(nil), e.l0IDs...)
	ssts := make(map[uint64]*sstable.SST, len(ids))
	for _, id := range ids {
		ssts[id] = e.ssts[id]
	}
	e.mu.RUnlock()

	l0Iter := e.collectL0Iter(ids, ssts, func(s *sstable.SST) (*sstable.Iterator, error) {
		return s.SeekFirst()
	})
	return iter.NewMergeIterator(memIter, l0Iter)
}

// PredicateRange returns a MergeIterator over the contiguous key run f
// accepts across the memtable and L0, or ok=false if nothing anywhere
// matches.
func (e *Engine) PredicateRange(f PredicateFunc) (*iter.MergeIterator, bool) {
	memIter, memOK := e.mt.MonotonicPredicateIters(skiplist.PredicateFunc(f))

	e.mu.RLock()
	ids := append([]uint64(nil), e.l0IDs...)
	ssts := make(map[uint64]*sstable.SST, len(ids))
	for _, id := range ids {
		ssts[id] = e.ssts[id]
	}
	e.mu.RUnlock()

	var l0Items []iter.SearchItem
	l0OK := false
	for _, id := range ids {
		begin, end, ok, err := ssts[id].RangeByPredicate(block.PredicateFunc(f))
		if err != nil || !ok {
			continue
		}
		l0OK = true
		for it := begin; !it.IsEnd() && !iteratorsEqual(it, end); {
			l0Items = append(l0Items, iter.SearchItem{Key: it.Key(), Value: it.Value(), Idx: -int(id)})
			nxt, nerr := it.Next()
			if nerr != nil {
				break
			}
			it = nxt
		}
	}

	if !memOK && !l0OK {
		return nil, false
	}
	if memIter == nil {
		memIter = iter.NewHeapIterator(nil)
	}
	return iter.NewMergeIterator(memIter, iter.NewHeapIterator(l0Items)), true
}

func iteratorsEqual(a, b *sstable.Iterator) bool {
	if a.IsEnd() && b.IsEnd() {
		return true
	}
	if a.IsEnd() != b.IsEnd() {
		return false
	}
	return bytes.Equal(a.Key(), b.Key())
}

func (e *Engine) collectL0Iter(ids []uint64, ssts map[uint64]*sstable.SST, seek func(*sstable.SST) (*sstable.Iterator, error)) *iter.HeapIterator {
	var items []iter.SearchItem
	for _, id := range ids {
		sst := ssts[id]
		if sst.NumBlocks() == 0 {
			continue
		}
		it, err := seek(sst)
		if err != nil {
			e.log.Warnw("skipping sst during scan", "sst_id", id, "err", err)
			continue
		}
		for !it.IsEnd() {
			// Larger sst_id is newer; tag idx as -id so a smaller idx
			// (more negative, i.e. larger id) wins ties (spec §4.8).
			items = append(items, iter.SearchItem{Key: it.Key(), Value: it.Value(), Idx: -int(id)})
			nxt, err := it.Next()
			if err != nil {
				e.log.Warnw("scan error advancing sst iterator", "sst_id", id, "err", err)
				break
			}
			it = nxt
		}
	}
	return iter.NewHeapIterator(items)
}

// Close flushes all outstanding writes and releases the memtable's WAL
// handle and every open SST file.
func (e *Engine) Close() error {
	if err := e.FlushAll(); err != nil {
		return err
	}
	if err := e.mt.Close(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, sst := range e.ssts {
		if err := sst.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
