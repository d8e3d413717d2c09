package cache

import "time"

// Cache defines the key-value contract used by the API client layer.
// All entries carry a TTL; reads refresh recency and bump the hit counter.
// Implementations may or may not be goroutine-safe depending on configuration.
type Cache[V any] interface {
	// Get returns the cached value if present and still fresh. A stale entry
	// is removed on the spot and reported as a miss.
	Get(key string) (V, bool)

	// Set stores the value. If ttl <= 0 the store default applies. When the
	// store is full, one entry is evicted first (lowest hits, oldest wins ties).
	Set(key string, value V, ttl time.Duration)

	// Has reports whether a key is present and fresh, without the
	// recency/hit side effects of Get.
	Has(key string) bool

	// Delete removes a key if present and reports whether it was there.
	Delete(key string) bool

	// Clear removes all entries and any persisted snapshot.
	Clear()

	// Stats returns a diagnostic snapshot of the store.
	Stats() Stats
}

// Entry stores a cached value together with its freshness bookkeeping.
// Timestamp is refreshed on every successful read, so validity doubles as
// recency of access.
type Entry[V any] struct {
	Data      V             `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Hits      int           `json:"hits"`
}

// expired reports whether the entry is past its TTL at the given instant.
func (e Entry[V]) expired(at time.Time) bool {
	return at.Sub(e.Timestamp) > e.TTL
}

// Stats is a diagnostic snapshot of a store. None of the fields participate
// in correctness decisions.
type Stats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"maxSize"`
	Expired   int           `json:"expired"`
	TotalHits int           `json:"totalHits"`
	AvgAge    time.Duration `json:"avgAge"`
}

// Snapshotter persists one serialized blob per named store. Implementations
// must tolerate concurrent callers. Load returns (nil, nil) when no snapshot
// exists for the name.
type Snapshotter interface {
	Load(name string) ([]byte, error)
	Save(name string, blob []byte) error
	Drop(name string) error
}
