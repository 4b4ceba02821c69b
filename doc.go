// Package gostore is an embedded, ordered, persistent key-value store
// built on the log-structured merge-tree discipline: a skip-list
// memtable (current + frozen queue) flushed to single-level (L0)
// sorted-string tables, read back through a merging iterator stack and
// an LRU-K block cache.
//
// Engine is the top-level façade; see the skiplist, block, sstable,
// cache, memtable, and iter packages for the subsystems it coordinates.
package gostore
