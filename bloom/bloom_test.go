package bloom_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunk/go-store/bloom"
)

func TestMightContainNoFalseNegatives(t *testing.T) {
	f := bloom.New(1000, 0.01)
	require.NotNil(t, f)

	var added [][]byte
	for i := 0; i < 500; i++ {
		k := []byte(fmt.Sprintf("key%d", i))
		f.Add(k)
		added = append(added, k)
	}
	for _, k := range added {
		assert.True(t, f.MightContain(k))
	}
}

func TestNilFilterAlwaysMightContain(t *testing.T) {
	var f *bloom.Filter
	assert.True(t, f.MightContain([]byte("anything")))
	f.Add([]byte("anything")) // must not panic
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := bloom.New(100, 0.01)
	require.NotNil(t, f)
	f.Add([]byte("hello"))
	f.Add([]byte("world"))

	encoded := f.Encode()
	decoded, err := bloom.Decode(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.MightContain([]byte("hello")))
	assert.True(t, decoded.MightContain([]byte("world")))
}

func TestDecodeEmptyYieldsNilFilter(t *testing.T) {
	f, err := bloom.Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestNewDegenerateParamsReturnsNil(t *testing.T) {
	assert.Nil(t, bloom.New(0, 0.01))
	assert.Nil(t, bloom.New(100, 0))
	assert.Nil(t, bloom.New(100, 1))
}
