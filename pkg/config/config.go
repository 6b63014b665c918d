// Package config exposes the store's construction parameters as command-line flags, the way the teacher
// codebase exposes tunables like memtable_flush_size_bytes or the Redis listen address: package-level flags
// defined once, read through a typed Config snapshot after flag.Parse has run.
package config

import "flag"

var (
	maxLevel    = flag.Int("store_max_level", 8, "Maximum number of index levels the skip list may grow to.")
	lruCapacity = flag.Int("store_volatile_lru_capacity", 8,
		"Maximum number of volatile (TTL-carrying) keys held by the LRU before the oldest is evicted.")
	storeFile = flag.String("store_file", "store/dumpFile", "Path to the snapshot file used by Dump/Load.")
	delimiter = flag.String("store_delimiter", ":", "Delimiter separating key and value in the snapshot file.")
)

// Config is an immutable snapshot of the store's construction parameters.
type Config struct {
	MaxLevel    int
	LRUCapacity int
	StoreFile   string
	Delimiter   string
}

// FromFlags builds a Config from the current flag values. Call it after flag.Parse.
func FromFlags() Config {
	return Config{
		MaxLevel:    *maxLevel,
		LRUCapacity: *lruCapacity,
		StoreFile:   *storeFile,
		Delimiter:   *delimiter,
	}
}

// Default returns the Config the store uses when no flags have been parsed, matching the original
// program's constants (max level 8, LRU capacity 8, store/dumpFile, ":").
func Default() Config {
	return Config{
		MaxLevel:    8,
		LRUCapacity: 8,
		StoreFile:   "store/dumpFile",
		Delimiter:   ":",
	}
}
