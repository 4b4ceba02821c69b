// Package lsmerr defines the sentinel error kinds shared across the
// engine's subsystems (spec error taxonomy: BadFormat, OutOfRange,
// IoError, Empty, CacheInvariantViolation).
package lsmerr

import "errors"

var (
	// ErrBadFormat marks a truncated or hash-mismatched on-disk structure
	// (block, block meta, SST meta section).
	ErrBadFormat = errors.New("lsm: bad format")

	// ErrOutOfRange marks a key outside an SST's [first_key, last_key] or
	// an index outside a block's offset table.
	ErrOutOfRange = errors.New("lsm: out of range")

	// ErrIOError names the filesystem-failure kind. No engine path wraps
	// or returns it: filesystem errors surface as the underlying os
	// errors, unwrapped.
	ErrIOError = errors.New("lsm: io error")

	// ErrEmpty marks SSTBuilder.Build called with no entries added.
	ErrEmpty = errors.New("lsm: empty sstable")

	// ErrCacheInvariantViolation marks BlockCache.Evict called on an
	// empty cache while size >= capacity. Unreachable in a correct
	// implementation; surfaced rather than panicked so callers can
	// decide how to treat it.
	ErrCacheInvariantViolation = errors.New("lsm: cache invariant violation")

	// ErrNotFound marks a key absent from the engine (includes
	// tombstoned keys, which are "not found" at the engine boundary).
	ErrNotFound = errors.New("lsm: key not found")
)
