package cache

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Store is a map-backed cache with per-entry TTL, capacity-bounded hybrid
// LFU/LRU eviction and optional snapshot persistence. The background expiry
// sweep is started explicitly via Start so tests can drive time themselves.
type Store[V any] struct {
	// If muPtr is nil, the store is NOT goroutine-safe.
	// If muPtr is non-nil, it guards all operations.
	muPtr *sync.RWMutex

	name    string
	entries map[string]Entry[V]

	defaultTTL time.Duration
	maxSize    int

	snapshots Snapshotter // nil disables persistence

	sweepStop chan struct{}
	sweepOnce sync.Once
	stopOnce  sync.Once
}

// Options controls construction of a Store.
type Options struct {
	// Name identifies the store in logs and keys its persisted snapshot.
	Name string

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// MaxSize caps the number of entries; inserting into a full store
	// evicts the entry with the fewest hits (oldest timestamp on ties).
	MaxSize int

	// ConcurrencySafe controls whether operations are guarded by a RWMutex.
	ConcurrencySafe bool

	// Snapshots enables persistence when non-nil. The snapshot is rewritten
	// on every mutation and reloaded on construction, dropping entries that
	// went stale in between. Load and save failures are logged, never fatal.
	Snapshots Snapshotter
}

// persistedEntry is the wire form of one [key, entry] pair in a snapshot.
type persistedEntry[V any] struct {
	Key   string   `json:"key"`
	Entry Entry[V] `json:"entry"`
}

// now is a small indirection to allow test stubbing.
var now = time.Now

// NewStore constructs a Store and, when persistence is enabled, re-admits
// whatever fresh entries survive in the snapshot. A missing or corrupt
// snapshot means starting empty.
func NewStore[V any](opts Options) *Store[V] {
	var mu *sync.RWMutex
	if opts.ConcurrencySafe {
		mu = &sync.RWMutex{}
	}
	s := &Store[V]{
		muPtr:      mu,
		name:       opts.Name,
		entries:    make(map[string]Entry[V]),
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		snapshots:  opts.Snapshots,
	}
	s.restore()
	return s
}

func (s *Store[V]) lockR() func() {
	if s.muPtr == nil {
		return func() {}
	}
	s.muPtr.RLock()
	return s.muPtr.RUnlock
}

func (s *Store[V]) lockW() func() {
	if s.muPtr == nil {
		return func() {}
	}
	s.muPtr.Lock()
	return s.muPtr.Unlock
}

// Get implements Cache.Get. A hit bumps the entry's hit count and refreshes
// its timestamp; a stale entry is deleted on the spot.
func (s *Store[V]) Get(key string) (V, bool) {
	unlock := s.lockW()
	defer unlock()

	var zero V
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	ts := now()
	if e.expired(ts) {
		delete(s.entries, key)
		s.persist()
		return zero, false
	}
	e.Hits++
	e.Timestamp = ts
	s.entries[key] = e
	s.persist()
	return e.Data, true
}

// Set implements Cache.Set. Inserting into a full store evicts exactly one
// entry first; overwriting an existing key never evicts.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	unlock := s.lockW()
	defer unlock()

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if _, exists := s.entries[key]; !exists && s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOne()
	}
	s.entries[key] = Entry[V]{
		Data:      value,
		Timestamp: now(),
		TTL:       ttl,
	}
	s.persist()
}

// evictOne removes the entry with the fewest hits, breaking ties by oldest
// timestamp. Caller holds the write lock.
func (s *Store[V]) evictOne() {
	var victim string
	found := false
	var vHits int
	var vTime time.Time
	for k, e := range s.entries {
		if !found || e.Hits < vHits || (e.Hits == vHits && e.Timestamp.Before(vTime)) {
			victim, vHits, vTime = k, e.Hits, e.Timestamp
			found = true
		}
	}
	if found {
		delete(s.entries, victim)
	}
}

// Has implements Cache.Has.
func (s *Store[V]) Has(key string) bool {
	unlock := s.lockR()
	defer unlock()
	e, ok := s.entries[key]
	return ok && !e.expired(now())
}

// Delete implements Cache.Delete.
func (s *Store[V]) Delete(key string) bool {
	unlock := s.lockW()
	defer unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.persist()
	return true
}

// Clear implements Cache.Clear. The persisted snapshot is dropped as well.
func (s *Store[V]) Clear() {
	unlock := s.lockW()
	defer unlock()
	s.entries = make(map[string]Entry[V])
	if s.snapshots != nil {
		if err := s.snapshots.Drop(s.name); err != nil {
			log.Printf("cache %q: drop snapshot failed: %v", s.name, err)
		}
	}
}

// DeleteMatching removes every entry whose key contains the given substring
// and returns how many were removed.
func (s *Store[V]) DeleteMatching(match func(key string) bool) int {
	unlock := s.lockW()
	defer unlock()
	removed := 0
	for k := range s.entries {
		if match(k) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.persist()
	}
	return removed
}

// Stats implements Cache.Stats.
func (s *Store[V]) Stats() Stats {
	unlock := s.lockR()
	defer unlock()

	st := Stats{Size: len(s.entries), MaxSize: s.maxSize}
	if len(s.entries) == 0 {
		return st
	}
	ts := now()
	var totalAge time.Duration
	for _, e := range s.entries {
		if e.expired(ts) {
			st.Expired++
		}
		st.TotalHits += e.Hits
		totalAge += ts.Sub(e.Timestamp)
	}
	st.AvgAge = totalAge / time.Duration(len(s.entries))
	return st
}

// PurgeExpired scans and removes all stale entries. It backs the periodic
// sweep and is exported so callers can trigger a scan deterministically.
func (s *Store[V]) PurgeExpired() {
	unlock := s.lockW()
	defer unlock()
	if len(s.entries) == 0 {
		return
	}
	ts := now()
	removed := 0
	for k, e := range s.entries {
		if e.expired(ts) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.persist()
	}
}

// Start launches the periodic expiry sweep. Calling Start more than once is
// a no-op. Stop terminates the sweep goroutine.
func (s *Store[V]) Start(interval time.Duration) {
	s.sweepOnce.Do(func() {
		stop := make(chan struct{})
		s.sweepStop = stop
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.PurgeExpired()
				case <-stop:
					return
				}
			}
		}()
	})
}

// Stop terminates the sweep goroutine if one is running. Safe to call more
// than once, and a no-op when Start was never called.
func (s *Store[V]) Stop() {
	s.stopOnce.Do(func() {
		if s.sweepStop != nil {
			close(s.sweepStop)
		}
	})
}

// persist rewrites the snapshot with the full entry table. Failures are
// logged and the store keeps operating in memory only. Caller holds the
// write lock.
func (s *Store[V]) persist() {
	if s.snapshots == nil {
		return
	}
	pairs := make([]persistedEntry[V], 0, len(s.entries))
	for k, e := range s.entries {
		pairs = append(pairs, persistedEntry[V]{Key: k, Entry: e})
	}
	blob, err := json.Marshal(pairs)
	if err != nil {
		log.Printf("cache %q: marshal snapshot failed: %v", s.name, err)
		return
	}
	if err := s.snapshots.Save(s.name, blob); err != nil {
		log.Printf("cache %q: save snapshot failed: %v", s.name, err)
	}
}

// restore loads the snapshot and re-admits only entries that are still
// fresh. Any load or decode failure means starting empty.
func (s *Store[V]) restore() {
	if s.snapshots == nil {
		return
	}
	blob, err := s.snapshots.Load(s.name)
	if err != nil {
		log.Printf("cache %q: load snapshot failed: %v", s.name, err)
		return
	}
	if len(blob) == 0 {
		return
	}
	var pairs []persistedEntry[V]
	if err := json.Unmarshal(blob, &pairs); err != nil {
		log.Printf("cache %q: corrupt snapshot discarded: %v", s.name, err)
		return
	}
	ts := now()
	for _, p := range pairs {
		if !p.Entry.expired(ts) {
			s.entries[p.Key] = p.Entry
		}
	}
}

// Ensure Store implements Cache at compile time.
var _ Cache[any] = (*Store[any])(nil)
