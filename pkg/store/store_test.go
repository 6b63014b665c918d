package store

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nobletooth/skiplru/pkg/config"
)

// clock is a manually-advanced stand-in for time.Now used to make TTL-sensitive tests deterministic.
type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newStore builds a deterministic Store[string] with a fixed-seed random source and a controllable clock.
func newStore(t *testing.T, cfg config.Config) (*Store[string], *clock) {
	t.Helper()
	c := newClock()
	s, err := New[string](cfg, rand.New(rand.NewSource(1)), c.now)
	require.NoError(t, err)
	return s, c
}

func TestStore_InsertAndUpdate(t *testing.T) {
	s, _ := newStore(t, config.Default())

	assert.False(t, s.Insert("1", "a"))
	assert.True(t, s.Insert("1", "b"))

	value, found := s.Search("1")
	require.True(t, found)
	assert.Equal(t, "b", value)
	assert.Equal(t, 1, s.Size())
}

func TestStore_Level0OrderMatchesInsertionRegardlessOfOrder(t *testing.T) {
	s, _ := newStore(t, config.Default())
	s.Insert("3", "c")
	s.Insert("1", "a")
	s.Insert("2", "b")

	for _, key := range []string{"1", "2", "3"} {
		_, found := s.Search(key)
		assert.True(t, found, "key %s should be present", key)
	}
	assert.Equal(t, 3, s.Size())

	var keys []string
	for pair := range s.list.All() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"1", "2", "3"}, keys)
}

func TestStore_DeleteThenSearchMisses(t *testing.T) {
	s, _ := newStore(t, config.Default())
	s.Insert("1", "a")

	assert.True(t, s.Delete("1"))
	_, found := s.Search("1")
	assert.False(t, found)

	assert.False(t, s.Delete("1"), "deleting an absent key is a no-op")
}

func TestStore_PersistentKeyNeverExpires(t *testing.T) {
	s, c := newStore(t, config.Default())
	s.Insert("1", "a")

	c.advance(365 * 24 * time.Hour)
	_, outcome := s.TTL("1")
	assert.Equal(t, TTLPersistent, outcome)
}

func TestStore_ExpireOnAbsentKeyFails(t *testing.T) {
	s, _ := newStore(t, config.Default())
	err := s.Expire("missing", time.Minute)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestStore_LRUEvictionCascade(t *testing.T) {
	cfg := config.Default()
	cfg.LRUCapacity = 3
	s, _ := newStore(t, cfg)

	for _, key := range []string{"10", "20", "30", "40"} {
		s.Insert(key, "v"+key)
	}
	for _, key := range []string{"10", "20", "30", "40"} {
		require.NoError(t, s.Expire(key, time.Minute))
	}

	_, found := s.Search("10")
	assert.False(t, found, "key 10 should have been cascade-deleted on the fourth Expire")
	assert.Equal(t, 3, s.Size())

	for _, key := range []string{"20", "30", "40"} {
		_, found := s.Search(key)
		assert.True(t, found, "key %s should survive in the LRU", key)
	}
	_, outcome := s.TTL("10")
	assert.Equal(t, TTLPersistent, outcome, "evicted key's TTL metadata must be gone too")
}

func TestStore_LazyExpiryViaTTL(t *testing.T) {
	s, c := newStore(t, config.Default())
	s.Insert("7", "x")
	require.NoError(t, s.Expire("7", time.Second))

	c.advance(2 * time.Second)
	_, outcome := s.TTL("7")
	assert.Equal(t, TTLReaped, outcome)

	_, found := s.Search("7")
	assert.False(t, found)
	assert.Equal(t, 0, s.Size())
}

func TestStore_LazyExpiryViaInsert(t *testing.T) {
	s, c := newStore(t, config.Default())
	s.Insert("9", "x")
	require.NoError(t, s.Expire("9", time.Second))

	c.advance(2 * time.Second)
	updated := s.Insert("9", "y")
	assert.False(t, updated, "insert over a lazily-reaped key is a fresh insertion")

	_, outcome := s.TTL("9")
	assert.Equal(t, TTLPersistent, outcome)
}

func TestStore_ExpirePromotesWithoutEvictingWhenAlreadyPresent(t *testing.T) {
	cfg := config.Default()
	cfg.LRUCapacity = 2
	s, _ := newStore(t, cfg)

	s.Insert("1", "a")
	s.Insert("2", "b")
	require.NoError(t, s.Expire("1", time.Minute))
	require.NoError(t, s.Expire("2", time.Minute))

	require.NoError(t, s.Expire("1", 2*time.Minute), "re-arming an already-volatile key must not evict it")

	for _, key := range []string{"1", "2"} {
		_, found := s.Search(key)
		assert.True(t, found, "key %s should still be present", key)
	}
}

func TestStore_DumpLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreFile = filepath.Join(dir, "dumpFile")
	s, _ := newStore(t, cfg)

	s.Insert("1", "a")
	s.Insert("2", "b")
	s.Insert("3", "c")
	require.NoError(t, s.Dump())

	fresh, _ := newStore(t, cfg)
	require.NoError(t, fresh.Load())

	for key, want := range map[string]string{"1": "a", "2": "b", "3": "c"} {
		got, found := fresh.Search(key)
		require.True(t, found, "key %s should have loaded", key)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, fresh.Size())
}

func TestStore_LoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreFile = filepath.Join(dir, "dumpFile")
	require.NoError(t, os.WriteFile(cfg.StoreFile, []byte("1:a\n\nno-delimiter-here\n:missing-key\n2:b\n"), 0o644))

	s, _ := newStore(t, cfg)
	require.NoError(t, s.Load())

	assert.Equal(t, 2, s.Size())
	v, found := s.Search("1")
	require.True(t, found)
	assert.Equal(t, "a", v)
}

func TestStore_DumpLoadMergesRatherThanReplaces(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreFile = filepath.Join(dir, "dumpFile")

	s, _ := newStore(t, cfg)
	s.Insert("1", "a")
	require.NoError(t, s.Dump())

	s.Insert("2", "b") // Not yet dumped.
	require.NoError(t, s.Load())

	assert.Equal(t, 2, s.Size())
}

func TestStore_ValueContainingDelimiterRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreFile = filepath.Join(dir, "dumpFile")
	s, _ := newStore(t, cfg)

	s.Insert("1", "a:b:c")
	require.NoError(t, s.Dump())

	fresh, _ := newStore(t, cfg)
	require.NoError(t, fresh.Load())

	v, found := fresh.Search("1")
	require.True(t, found)
	assert.Equal(t, "a:b:c", v)
}

func TestStore_Display(t *testing.T) {
	s, _ := newStore(t, config.Default())
	s.Insert("1", "a")
	s.Insert("2", "b")

	var buf strings.Builder
	require.NoError(t, s.Display(&buf))
	out := buf.String()
	assert.Contains(t, out, "Level 0:")
	assert.Contains(t, out, "1:a")
	assert.Contains(t, out, "2:b")
}
