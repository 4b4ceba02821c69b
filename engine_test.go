package gostore_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	gostore "github.com/arjunk/go-store"
	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/internal/config"
	"github.com/arjunk/go-store/lsmerr"
	"github.com/arjunk/go-store/sstable"
)

func testOptions(cfg config.Config) gostore.Options {
	return gostore.Options{Config: cfg, Logger: zap.NewNop().Sugar()}
}

// Mirrors spec §8 scenario 1.
func TestBasicPutGetRemove(t *testing.T) {
	db, err := gostore.Open(t.TempDir(), testOptions(config.Default()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("key1"), []byte("value1")))
	v, err := db.Get([]byte("key1"))
	require.NoError(t, err)
	assert.Equal(t, "value1", string(v))

	require.NoError(t, db.Put([]byte("key1"), []byte("new_value")))
	v, err = db.Get([]byte("key1"))
	require.NoError(t, err)
	assert.Equal(t, "new_value", string(v))

	require.NoError(t, db.Remove([]byte("key1")))
	_, err = db.Get([]byte("key1"))
	assert.ErrorIs(t, err, lsmerr.ErrNotFound)

	_, err = db.Get([]byte("nonexistent"))
	assert.ErrorIs(t, err, lsmerr.ErrNotFound)
}

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.PerMemtableSizeLimit = 2048
	cfg.TotalMemtableSizeLimit = 4096
	cfg.BlockSize = 1024
	return cfg
}

// Scaled-down analogue of spec §8 scenario 2 (100k keys there; a smaller
// count here to keep the test fast while still exercising multiple
// flushes, deletes interleaved with inserts, and a full restart).
func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()

	want := make(map[string]string)
	func() {
		db, err := gostore.Open(dir, testOptions(cfg))
		require.NoError(t, err)
		defer db.Close()

		for i := 0; i < 2000; i++ {
			k := fmt.Sprintf("key%d", i)
			v := fmt.Sprintf("value%d", i)
			require.NoError(t, db.Put([]byte(k), []byte(v)))
			want[k] = v
			if i > 0 && i%10 == 0 {
				delK := fmt.Sprintf("key%d", i-10)
				require.NoError(t, db.Remove([]byte(delK)))
				delete(want, delK)
			}
		}
	}()

	db, err := gostore.Open(dir, testOptions(cfg))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 2000; i++ {
		k := fmt.Sprintf("key%d", i)
		v, err := db.Get([]byte(k))
		if want[k] == "" {
			assert.ErrorIs(t, err, lsmerr.ErrNotFound, "key %s should be absent", k)
			continue
		}
		require.NoError(t, err, "key %s", k)
		assert.Equal(t, want[k], string(v))
	}
}

// Mirrors spec §8 scenario 3: insert key00..key99 with zero-padded
// values, flush halfway, then range over [20,60] via PredicateRange.
func TestPredicateRangeAcrossMemtableAndL0(t *testing.T) {
	db, err := gostore.Open(t.TempDir(), testOptions(config.Default()))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key%02d", i)
		v := fmt.Sprintf("%020d", i)
		require.NoError(t, db.Put([]byte(k), []byte(v)))
		if i == 50 {
			require.NoError(t, db.Flush())
		}
	}

	pred := func(key []byte) int {
		n := (int(key[3]-'0') * 10) + int(key[4]-'0')
		if n < 20 {
			return 1
		}
		if n > 60 {
			return -1
		}
		return 0
	}

	it, ok := db.PredicateRange(pred)
	require.True(t, ok)

	var got []string
	for !it.IsEnd() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	require.Len(t, got, 41)
	assert.Equal(t, "key20", got[0])
	assert.Equal(t, "key60", got[len(got)-1])
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func TestScanOrderingAndDedupAcrossFlush(t *testing.T) {
	db, err := gostore.Open(t.TempDir(), testOptions(config.Default()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("old")))
	require.NoError(t, db.Put([]byte("c"), []byte("old-c")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Put([]byte("a"), []byte("new")))
	require.NoError(t, db.Put([]byte("b"), []byte("only-b")))

	it := db.Begin()
	var got [][2]string
	for !it.IsEnd() {
		got = append(got, [2]string{string(it.Key()), string(it.Value())})
		it.Next()
	}
	require.Equal(t, [][2]string{
		{"a", "new"},
		{"b", "only-b"},
		{"c", "old-c"},
	}, got)
}

// A manifest can go stale relative to disk: an SST can be fully built
// and fsynced before a crash interrupts the manifest rewrite meant to
// publish it. Open must pick up that orphaned SST via a directory scan
// rather than leaving it unregistered, where a later flush's new_sst_id
// allocation (based only on the stale manifest) would recompute to the
// exact same id and silently overwrite it.
func TestStaleManifestOrphanedSSTIsRecoveredNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()

	db, err := gostore.Open(dir, testOptions(cfg))
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("a"), []byte("a-value")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())

	b := sstable.NewBuilder(cfg.BlockSize, cfg.FilterExpectedEntries, cfg.FilterFalsePositiveRate)
	require.NoError(t, b.Add([]byte("orphan"), []byte("orphan-value")))
	c := cache.New(cfg.BlockCacheCapacity, cfg.BlockCacheK)
	orphan, err := b.Build(1, filepath.Join(dir, "sst_0001"), c)
	require.NoError(t, err)
	require.NoError(t, orphan.Close())

	db2, err := gostore.Open(dir, testOptions(cfg))
	require.NoError(t, err)
	defer db2.Close()

	v, err := db2.Get([]byte("orphan"))
	require.NoError(t, err, "the orphaned sst must be picked up by directory reconciliation")
	assert.Equal(t, "orphan-value", string(v))

	v, err = db2.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "a-value", string(v))

	require.NoError(t, db2.Put([]byte("b"), []byte("b-value")))
	require.NoError(t, db2.Flush())

	v, err = db2.Get([]byte("orphan"))
	require.NoError(t, err, "the orphan must still be readable after a later flush allocates past it")
	assert.Equal(t, "orphan-value", string(v))
}

func TestFlushAllAndReopenSeesSSTs(t *testing.T) {
	dir := t.TempDir()
	func() {
		db, err := gostore.Open(dir, testOptions(config.Default()))
		require.NoError(t, err)
		defer db.Close()
		for i := 0; i < 5; i++ {
			require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i))))
		}
		require.NoError(t, db.FlushAll())
	}()

	db, err := gostore.Open(dir, testOptions(config.Default()))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Get([]byte("k3"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(v))
}
