package gostore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeManifest(dir, []uint64{3, 2, 0}))

	ids, ok, err := readManifest(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint64{3, 2, 0}, ids)
}

func TestReadManifestMissingFileReturnsNotOK(t *testing.T) {
	ids, ok, err := readManifest(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ids)
}

func TestRecoverFromDirectoryScansSSTFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sst_0000", "sst_0002", "sst_0001", "MANIFEST", "not-an-sst"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	ids, err := recoverFromDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 0}, ids)
}

// The scenario at the heart of the stale-manifest bug: an SST fsynced
// to disk (id 2) that the manifest (written before it, listing only
// [1, 0]) never got to record before a crash. Reconciliation must keep
// it rather than let a subsequent flush reallocate its id.
func TestUnionIDsDescendingKeepsDirectoryOnlyIDs(t *testing.T) {
	manifestIDs := []uint64{1, 0}
	dirIDs := []uint64{2, 1, 0}

	got := unionIDsDescending(manifestIDs, dirIDs)
	assert.Equal(t, []uint64{2, 1, 0}, got)
}

func TestUnionIDsDescendingDeduplicatesAndSorts(t *testing.T) {
	got := unionIDsDescending([]uint64{5, 1}, []uint64{3, 1})
	assert.Equal(t, []uint64{5, 3, 1}, got)
}
