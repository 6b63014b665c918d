// Package store wires the skip list index, the TTL registry, and the volatile LRU into the single
// lock-guarded façade described by the module: every externally visible operation funnels through one
// critical section that keeps the three structures consistent with each other.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nobletooth/skiplru/pkg/config"
	"github.com/nobletooth/skiplru/pkg/lru"
	"github.com/nobletooth/skiplru/pkg/skiplist"
	"github.com/nobletooth/skiplru/pkg/ttl"
)

// ErrKeyNotFound is returned by Expire when the key does not exist in the skip list.
var ErrKeyNotFound = errors.New("store: key not found")

// TTLOutcome classifies the result of a TTL query.
type TTLOutcome int

const (
	// TTLPersistent means the key carries no TTL.
	TTLPersistent TTLOutcome = iota
	// TTLReaped means the key had expired and was just removed by this call.
	TTLReaped
	// TTLRemaining means the key is still live; the returned duration is what's left.
	TTLRemaining
)

// Store is an in-memory ordered key-value store with per-key TTL and a bounded LRU over volatile keys. Keys
// are strings; values are generic. The zero value is not usable; construct one with New.
type Store[V any] struct {
	mu sync.Mutex

	cfg      config.Config
	list     *skiplist.SkipList[string, V]
	ttlReg   *ttl.Registry[string]
	volatile *lru.LRU[string, V]
}

// New constructs a Store from cfg. rnd drives the skip list's level assignment and now supplies wallclock
// reads for TTL bookkeeping; pass rand.New(rand.NewSource(time.Now().UnixNano())) and time.Now in
// production, and fixed/controllable stand-ins in tests for determinism.
func New[V any](cfg config.Config, rnd *rand.Rand, now func() time.Time) (*Store[V], error) {
	list, err := skiplist.New[string, V](cfg.MaxLevel, rnd)
	if err != nil {
		return nil, err
	}
	volatile, err := lru.New[string, V](cfg.LRUCapacity)
	if err != nil {
		return nil, err
	}
	return &Store[V]{
		cfg:      cfg,
		list:     list,
		ttlReg:   ttl.New[string](now),
		volatile: volatile,
	}, nil
}

// NewDefault constructs a Store using config.Default(), a random source seeded from the current time, and
// time.Now.
func NewDefault[V any]() (*Store[V], error) {
	return New[V](config.Default(), rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// reapIfExpired drops key from all three structures if the TTL registry considers it expired. It reports
// whether a reap happened. Callers must hold mu.
func (s *Store[V]) reapIfExpired(key string) bool {
	if s.ttlReg.IsExpired(key) != ttl.Expired {
		return false
	}
	s.volatile.Del(key)
	s.ttlReg.Erase(key)
	s.list.Delete(key)
	return true
}

// Insert adds key/value to the store, or overwrites the value if key is already present. It reports whether
// an existing, still-live binding was updated.
//
// If key was volatile and has since expired, it is lazily reaped first and the insertion is treated as
// fresh (updated=false) rather than as an update of the stale binding. If key was volatile and still live,
// it is promoted in the LRU with the new value.
func (s *Store[V]) Insert(key string, value V) (updated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reapIfExpired(key) {
		return s.list.Insert(key, value)
	}
	if s.ttlReg.IsExpired(key) == ttl.Live {
		s.volatile.Put(key, value)
	}
	return s.list.Insert(key, value)
}

// Search returns the value bound to key, consulting the volatile LRU first (which promotes key to
// most-recently-used on a hit) and falling back to the skip list. Per §9's codified design choice, this
// does not itself check TTL — a key whose TTL has elapsed but has not yet been touched by Insert or TTL may
// still be returned. Callers that care about liveness should pair Search with TTL.
func (s *Store[V]) Search(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, found := s.volatile.Get(key); found {
		return value, true
	}
	return s.list.Search(key)
}

// Delete removes key from the store, cascading to the TTL registry and volatile LRU first. It reports
// whether key was present in the skip list.
func (s *Store[V]) Delete(key string) (found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volatile.Del(key)
	s.ttlReg.Erase(key)
	return s.list.Delete(key)
}

// Size returns the number of keys currently held in the skip list.
func (s *Store[V]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Len()
}

// Expire arms key with a TTL of duration starting now, overwriting any previous TTL on key. It fails with
// ErrKeyNotFound if key is absent from the skip list. The value recorded in the volatile LRU is re-read
// from the skip list at the moment of this call (see SPEC_FULL.md §9 on this choice). If admitting key to the
// LRU evicts another volatile key, that key is cascade-deleted from the skip list and the TTL registry too.
func (s *Store[V]) Expire(key string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, found := s.list.Search(key)
	if !found {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err := s.ttlReg.Expire(key, duration); err != nil {
		return err
	}

	result := s.volatile.Put(key, value)
	if result.Outcome != lru.Evicted {
		return nil
	}
	evicted := result.EvictedKey
	s.ttlReg.Erase(evicted)
	s.list.Delete(evicted)
	return nil
}

// TTL reports the remaining time-to-live on key. A persistent key (one never armed with Expire, or one
// whose TTL was cleared by Delete) reports TTLPersistent with a zero duration. An expired key is lazily
// reaped from all three structures as a side effect of this call and reports TTLReaped. Otherwise the
// remaining duration is returned alongside TTLRemaining.
func (s *Store[V]) TTL(key string) (remaining time.Duration, outcome TTLOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, result := s.ttlReg.TTL(key)
	switch result {
	case ttl.ResultPersistent:
		return 0, TTLPersistent
	case ttl.ResultReaped:
		s.volatile.Del(key)
		s.list.Delete(key)
		return 0, TTLReaped
	default:
		return remaining, TTLRemaining
	}
}

// Dump writes every key-value pair currently in the skip list, in ascending key order, to the store's
// configured snapshot file, truncating any prior content. TTL metadata and LRU recency are not persisted.
// A failure leaves the in-memory state untouched and is returned wrapped.
func (s *Store[V]) Dump() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.cfg.StoreFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: failed to create snapshot directory: %w", err)
		}
	}
	file, err := os.Create(s.cfg.StoreFile)
	if err != nil {
		return fmt.Errorf("store: failed to create snapshot file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := bufio.NewWriter(file)
	for pair := range s.list.All() {
		if _, err := fmt.Fprintf(writer, "%v%s%v\n", pair.Key, s.cfg.Delimiter, pair.Value); err != nil {
			return fmt.Errorf("store: failed to write snapshot record: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("store: failed to flush snapshot file: %w", err)
	}
	slog.Debug("Dumped store snapshot.", "file", s.cfg.StoreFile, "size", s.list.Len())
	return nil
}

// Load reads the store's configured snapshot file line by line and inserts every well-formed record through
// the normal Insert path, so loading into a non-empty store merges rather than replaces. A line that is empty
// or lacks the delimiter is skipped silently; only the first occurrence of the delimiter separates key from
// value, so a value containing the delimiter round-trips correctly. A failure to open or read the file is
// returned wrapped; records already inserted before the failure remain in the store.
func (s *Store[V]) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.cfg.StoreFile)
	if err != nil {
		return fmt.Errorf("store: failed to open snapshot file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	var loaded, skipped int
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, s.cfg.Delimiter)
		if !ok || key == "" {
			skipped++
			continue
		}
		s.insertParsedValue(key, value)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("store: failed to read snapshot file: %w", err)
	}
	slog.Debug("Loaded store snapshot.", "file", s.cfg.StoreFile, "loaded", loaded, "skipped", skipped)
	return nil
}

// insertParsedValue feeds a parsed (string, string) snapshot record through the normal lazy-reap-then-insert
// path. It assumes mu is held. The snapshot format (§4.4/§6) is inherently textual, so only a store whose V is
// string can take the parsed value; Load compiles for any V, but for any other V every record is skipped here
// with a warning.
func (s *Store[V]) insertParsedValue(key, value string) {
	v, ok := any(value).(V)
	if !ok {
		slog.Warn("Skipped snapshot record whose value could not be loaded into this store's value type.",
			"key", key)
		return
	}
	if s.reapIfExpired(key) {
		s.list.Insert(key, v)
		return
	}
	if s.ttlReg.IsExpired(key) == ttl.Live {
		s.volatile.Put(key, v)
	}
	s.list.Insert(key, v)
}

// Display renders the skip list level by level to w, one line per level from the top level down to 0, in the
// form "Level i: k1:v1;k2:v2;...". It is diagnostic output only and is not part of the snapshot format.
func (s *Store[V]) Display(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for level := s.list.CurrentLevel(); level >= 0; level-- {
		keys := s.list.LevelKeys(level)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			value, _ := s.list.Search(key)
			parts = append(parts, fmt.Sprintf("%v%s%v", key, s.cfg.Delimiter, value))
		}
		if _, err := fmt.Fprintf(w, "Level %d: %s\n", level, strings.Join(parts, ";")); err != nil {
			return fmt.Errorf("store: failed to write display output: %w", err)
		}
	}
	return nil
}
