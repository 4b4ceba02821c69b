package block_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunk/go-store/block"
)

func TestAddEntryAlwaysAcceptsFirst(t *testing.T) {
	b := block.New(4) // capacity smaller than the first entry
	ok := b.AddEntry([]byte("key0"), []byte("a-value-longer-than-capacity"))
	assert.True(t, ok)
	assert.Equal(t, 1, b.NumEntries())
}

func TestAddEntryRejectsOverflowWhenNonEmpty(t *testing.T) {
	b := block.New(40)
	require.True(t, b.AddEntry([]byte("k1"), []byte("0123456789")))
	ok := b.AddEntry([]byte("k2"), []byte("0123456789012345678901234567890"))
	assert.False(t, ok)
	assert.Equal(t, 1, b.NumEntries())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := block.New(1024)
	entries := []block.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("")}, // tombstone
	}
	for _, e := range entries {
		require.True(t, b.AddEntry(e.Key, e.Value))
	}

	encoded := b.Encode()
	decoded, err := block.Decode(encoded, false)
	require.NoError(t, err)
	require.Equal(t, len(entries), decoded.NumEntries())
	for i, want := range entries {
		got := decoded.EntryAt(i)
		assert.Equal(t, string(want.Key), string(got.Key))
		assert.Equal(t, string(want.Value), string(got.Value))
	}
	assert.True(t, decoded.EntryAt(2).IsTombstone())
}

func TestDecodeVerifiesHash(t *testing.T) {
	b := block.New(1024)
	b.AddEntry([]byte("a"), []byte("1"))
	raw := b.Encode()

	withHash := append(append([]byte(nil), raw...), 0, 0, 0, 0) // wrong hash
	_, err := block.Decode(withHash, true)
	assert.Error(t, err)
}

func TestFindIndexAndFindValue(t *testing.T) {
	b := block.New(1024)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%02d", i)
		b.AddEntry([]byte(key), []byte(fmt.Sprintf("value%02d", i)))
	}

	idx, ok := b.FindIndex([]byte("key05"))
	require.True(t, ok)
	assert.Equal(t, 5, idx)

	v, ok := b.FindValue([]byte("key09"))
	require.True(t, ok)
	assert.Equal(t, "value09", string(v))

	_, ok = b.FindValue([]byte("key99"))
	assert.False(t, ok)
}

func TestMonotonicPredicateRange(t *testing.T) {
	b := block.New(4096)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%d", i)
		b.AddEntry([]byte(key), []byte("v"))
	}
	// keys sort lexicographically: key0,key1,key2,...,key9 already ascending
	pred := func(key []byte) int {
		n := int(key[3] - '0')
		if n < 3 {
			return 1
		}
		if n > 6 {
			return -1
		}
		return 0
	}
	begin, end, ok := b.MonotonicPredicateRange(pred)
	require.True(t, ok)
	assert.Equal(t, 3, begin)
	assert.Equal(t, 7, end)
}

func TestMonotonicPredicateRangeNoMatch(t *testing.T) {
	b := block.New(4096)
	b.AddEntry([]byte("a"), []byte("1"))
	_, _, ok := b.MonotonicPredicateRange(func(key []byte) int { return 1 })
	assert.False(t, ok)
}

func TestIteratorWalksAndEquality(t *testing.T) {
	b := block.New(4096)
	b.AddEntry([]byte("a"), []byte("1"))
	b.AddEntry([]byte("b"), []byte("2"))

	it := block.NewIterator(b, 0)
	assert.False(t, it.End())
	assert.Equal(t, "a", string(it.Entry().Key))

	next := it.Next()
	assert.Equal(t, "b", string(next.Entry().Key))
	assert.False(t, it.Equal(next))

	end := next.Next()
	assert.True(t, end.End())
}
