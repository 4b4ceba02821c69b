package sstable_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunk/go-store/block"
	"github.com/arjunk/go-store/cache"
	"github.com/arjunk/go-store/lsmerr"
	"github.com/arjunk/go-store/sstable"
)

func buildSST(t *testing.T, blockSize int, kvs [][2]string) *sstable.SST {
	t.Helper()
	dir := t.TempDir()
	c := cache.New(1024, 8)
	b := sstable.NewBuilder(blockSize, len(kvs), 0.01)
	for _, kv := range kvs {
		require.NoError(t, b.Add([]byte(kv[0]), []byte(kv[1])))
	}
	sst, err := b.Build(0, filepath.Join(dir, "sst_0000"), c)
	require.NoError(t, err)
	return sst
}

func TestBuildEmptyFailsWithErrEmpty(t *testing.T) {
	b := sstable.NewBuilder(4096, 10, 0.01)
	_, err := b.Build(0, filepath.Join(t.TempDir(), "sst_0000"), cache.New(16, 2))
	assert.ErrorIs(t, err, lsmerr.ErrEmpty)
}

func TestBuildOpenRoundTrip(t *testing.T) {
	kvs := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	sst := buildSST(t, 4096, kvs)
	defer sst.Close()

	assert.Equal(t, "a", string(sst.FirstKey()))
	assert.Equal(t, "c", string(sst.LastKey()))

	it, err := sst.Get([]byte("b"))
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, "2", string(it.Value()))
}

// Mirrors spec §8 scenario 4: small block size forces a multi-block SST;
// every block decodes, keys span first_key="key0" to last_key="key9".
func TestBlockSplit(t *testing.T) {
	var kvs [][2]string
	for i := 0; i < 10; i++ {
		kvs = append(kvs, [2]string{fmt.Sprintf("key%d", i), fmt.Sprintf("%020d", i)})
	}
	sst := buildSST(t, 64, kvs)
	defer sst.Close()

	assert.Greater(t, sst.NumBlocks(), 1)
	assert.Equal(t, "key0", string(sst.FirstKey()))
	assert.Equal(t, "key9", string(sst.LastKey()))

	for _, kv := range kvs {
		it, err := sst.Get([]byte(kv[0]))
		require.NoError(t, err)
		require.False(t, it.IsEnd())
		assert.Equal(t, kv[1], string(it.Value()))
	}
}

func TestBuildWritesWALGenMarkerWhenSourceSet(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(16, 2)
	b := sstable.NewBuilder(4096, 10, 0.01)
	require.NoError(t, b.Add([]byte("a"), []byte("1")))
	b.SetSourceWALGen(7)

	path := filepath.Join(dir, "sst_0000")
	sst, err := b.Build(0, path, c)
	require.NoError(t, err)
	defer sst.Close()

	gen, ok, err := sstable.ReadWALGenMarker(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, gen)
}

func TestBuildOmitsMarkerWithoutSourceSet(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(16, 2)
	b := sstable.NewBuilder(4096, 10, 0.01)
	require.NoError(t, b.Add([]byte("a"), []byte("1")))

	path := filepath.Join(dir, "sst_0000")
	sst, err := b.Build(0, path, c)
	require.NoError(t, err)
	defer sst.Close()

	_, ok, err := sstable.ReadWALGenMarker(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetMissingKeyReturnsEnd(t *testing.T) {
	sst := buildSST(t, 4096, [][2]string{{"b", "1"}, {"d", "2"}})
	defer sst.Close()

	it, err := sst.Get([]byte("z"))
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}

func TestFindBlockIndexOutOfRange(t *testing.T) {
	sst := buildSST(t, 4096, [][2]string{{"m", "1"}})
	defer sst.Close()

	_, err := sst.FindBlockIndex([]byte("a"))
	assert.Error(t, err)
	_, err = sst.FindBlockIndex([]byte("z"))
	assert.Error(t, err)
}

func TestSeekFirstAndNextIterateAscending(t *testing.T) {
	kvs := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	sst := buildSST(t, 4096, kvs)
	defer sst.Close()

	it, err := sst.SeekFirst()
	require.NoError(t, err)
	var got []string
	for !it.IsEnd() {
		got = append(got, string(it.Key()))
		it, err = it.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

// Mirrors spec §8 scenario 3's predicate but restricted to a single
// SST: insert key00..key99 (zero-padded), predicate keeps [20,60].
func TestRangeByPredicate(t *testing.T) {
	var kvs [][2]string
	for i := 0; i < 100; i++ {
		kvs = append(kvs, [2]string{fmt.Sprintf("key%02d", i), fmt.Sprintf("val%02d", i)})
	}
	sst := buildSST(t, 512, kvs)
	defer sst.Close()

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

	begin, end, ok, err := sst.RangeByPredicate(block.PredicateFunc(pred))
	require.NoError(t, err)
	require.True(t, ok)

	var got []string
	it := begin
	for !it.IsEnd() {
		if !end.IsEnd() && string(it.Key()) == string(end.Key()) {
			break
		}
		got = append(got, string(it.Key()))
		nxt, nerr := it.Next()
		require.NoError(t, nerr)
		it = nxt
	}
	require.Len(t, got, 41)
	assert.Equal(t, "key20", got[0])
	assert.Equal(t, "key60", got[len(got)-1])
}
