package gostore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

const manifestName = "MANIFEST"

var sstFilenameRe = regexp.MustCompile(`^sst_(\d{4,})$`)

func sstPath(dataDir string, id uint64) string {
	return filepath.Join(dataDir, fmt.Sprintf("sst_%04d", id))
}

// writeManifest records the live L0 id list (newest first), generalized
// from the teacher's multi-level writeManifestFile to this design's
// single L0 level.
func writeManifest(dataDir string, l0IDs []uint64) error {
	path := filepath.Join(dataDir, manifestName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 0, 8+8*len(l0IDs))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(l0IDs)))
	for _, id := range l0IDs {
		buf = binary.LittleEndian.AppendUint64(buf, id)
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// readManifest returns the recorded L0 id list (newest first), or
// ok=false if no manifest exists yet (first run) or it is truncated
// past recovery. The manifest can also be stale relative to what is
// actually on disk — an SST can be written and fsynced before a crash
// interrupts the manifest rewrite that was meant to publish it — so
// Open always reconciles this list against a directory scan rather
// than trusting it alone (see unionIDsDescending).
func readManifest(dataDir string) (ids []uint64, ok bool, err error) {
	path := filepath.Join(dataDir, manifestName)
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return nil, false, nil
		}
		return nil, false, rerr
	}
	if len(data) < 8 {
		return nil, false, nil
	}
	n := binary.LittleEndian.Uint64(data[:8])
	data = data[8:]
	if uint64(len(data)) < n*8 {
		return nil, false, nil
	}
	ids = make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		ids[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return ids, true, nil
}

// recoverFromDirectory scans dataDir for sst_%04d files. Open always
// runs this alongside readManifest and reconciles the two (spec §4.8),
// rather than treating it as a fallback used only when the manifest is
// altogether missing.
func recoverFromDirectory(dataDir string) ([]uint64, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := sstFilenameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var id uint64
		fmt.Sscanf(m[1], "%d", &id)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// unionIDsDescending merges a manifest's id list with a directory scan's
// id list, deduplicated and sorted newest-first. Any id the directory
// scan finds that the manifest doesn't know about — an SST fsynced to
// disk just before a crash truncated the manifest rewrite meant to
// publish it — is kept rather than silently dropped, so a subsequent
// Flush's new_sst_id allocation (max known id + 1) can never collide
// with it and overwrite it.
func unionIDsDescending(manifestIDs, dirIDs []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(manifestIDs)+len(dirIDs))
	ids := make([]uint64, 0, len(manifestIDs)+len(dirIDs))
	for _, id := range manifestIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, id := range dirIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}
