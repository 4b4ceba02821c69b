package sstable

import (
	"os"
	"strconv"
	"strings"
)

// walGenMarkerPath names the sidecar file recording which memtable WAL
// generation an SST was built from.
func walGenMarkerPath(path string) string {
	return path + ".walgen"
}

// writeWALGenMarker persists gen beside path, fsynced, before path
// itself is created.
func writeWALGenMarker(path string, gen int) error {
	f, err := os.Create(walGenMarkerPath(path))
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(gen)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWALGenMarker reads the WAL generation recorded for the SST at
// path, if any. A missing or corrupt marker yields ok=false rather than
// an error: the marker is a best-effort reconciliation aid (see
// DESIGN.md), never load-bearing for reading the SST itself.
func ReadWALGenMarker(path string) (gen int, ok bool, err error) {
	data, rerr := os.ReadFile(walGenMarkerPath(path))
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return 0, false, nil
		}
		return 0, false, rerr
	}
	n, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr != nil {
		return 0, false, nil
	}
	return n, true, nil
}
