// Package ttl tracks per-key time-to-live metadata for the store.
//
// A Registry owns no values — only a key and a little numeric metadata per volatile key. A key is
// "volatile" for as long as it has an entry here; removing the entry (via Erase, or implicitly by never
// calling Expire) makes the key "persistent" again from the registry's point of view. Expiration is never
// swept in the background: IsExpired and TTL are the only two ways a caller learns that a key's clock has run
// out, and both are answered lazily, at the moment they're asked.
package ttl

import (
	"errors"
	"time"

	"github.com/nobletooth/skiplru/pkg/utils"
)

// ErrNegativeDuration is returned by Expire when given a negative duration.
var ErrNegativeDuration = errors.New("ttl: duration must not be negative")

// Outcome classifies the liveness of a key as answered by IsExpired.
type Outcome int

const (
	// Persistent means the key carries no TTL at all.
	Persistent Outcome = iota
	// Live means the key has a TTL and has not yet reached it.
	Live
	// Expired means the key has a TTL and has passed it; it has not been reaped yet.
	Expired
)

// TTLResult classifies the result of a TTL query, which additionally distinguishes a key that was just
// lazily reaped from one that was merely found to be expired.
type TTLResult int

const (
	// ResultPersistent means the key carries no TTL.
	ResultPersistent TTLResult = iota
	// ResultReaped means the key had expired and has just been removed from the registry by this call.
	ResultReaped
	// ResultRemaining means the key is still live; the duration TTL returns alongside it is the time left.
	ResultRemaining
)

// entry records when a key's TTL was set and for how long it runs.
type entry struct {
	duration time.Duration
	setAt    time.Time
}

// Registry maps volatile keys to their TTL metadata. It is not safe for concurrent use on its own; the
// store serializes all access with its own lock.
type Registry[K comparable] struct {
	entries map[K]entry
	now     func() time.Time
}

// New constructs an empty Registry. now supplies the wallclock reading used for all duration math; pass
// time.Now in production and a controllable stub in tests.
func New[K comparable](now func() time.Time) *Registry[K] {
	return &Registry[K]{entries: make(map[K]entry), now: now}
}

// Expire records that key expires duration from now, overwriting any prior TTL for key.
func (r *Registry[K]) Expire(key K, duration time.Duration) error {
	if duration < 0 {
		utils.RaiseInvariant("ttl", "negative_duration", "duration must not be negative", "duration", duration)
		return ErrNegativeDuration
	}
	r.entries[key] = entry{duration: duration, setAt: r.now()}
	return nil
}

// Erase removes key's TTL metadata unconditionally. It is a no-op if key carries no TTL.
func (r *Registry[K]) Erase(key K) {
	delete(r.entries, key)
}

// IsExpired classifies key's current liveness without mutating the registry.
func (r *Registry[K]) IsExpired(key K) Outcome {
	e, ok := r.entries[key]
	if !ok {
		return Persistent
	}
	if r.now().Sub(e.setAt) > e.duration {
		return Expired
	}
	return Live
}

// TTL answers how much time key has left. If key has just been found expired, it is reaped (removed from
// the registry) as a side effect and ResultReaped is returned.
func (r *Registry[K]) TTL(key K) (remaining time.Duration, result TTLResult) {
	e, ok := r.entries[key]
	if !ok {
		return 0, ResultPersistent
	}
	elapsed := r.now().Sub(e.setAt)
	if elapsed > e.duration {
		delete(r.entries, key)
		return 0, ResultReaped
	}
	return e.duration - elapsed, ResultRemaining
}

// Keys returns every volatile key currently tracked, in no particular order.
func (r *Registry[K]) Keys() []K {
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len reports how many keys currently carry a TTL.
func (r *Registry[K]) Len() int {
	return len(r.entries)
}
