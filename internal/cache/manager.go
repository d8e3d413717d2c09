package cache

import (
	"strings"
	"time"
)

// Store names, one per data domain. Each store owns its entries exclusively;
// the only cross-store operation is pattern invalidation.
const (
	StoreAPI     = "api"
	StoreUser    = "user"
	StoreWorkout = "workout"
	StoreImages  = "images"
)

// StoreConfig holds the per-store tuning knobs.
type StoreConfig struct {
	DefaultTTL time.Duration
	MaxSize    int
	Persist    bool
}

// DefaultStoreConfigs mirrors the cache domains of the fitness app: short
// TTLs for generic API data, longer ones for reference-heavy domains.
func DefaultStoreConfigs() map[string]StoreConfig {
	return map[string]StoreConfig{
		StoreAPI:     {DefaultTTL: 5 * time.Minute, MaxSize: 100},
		StoreUser:    {DefaultTTL: 10 * time.Minute, MaxSize: 50, Persist: true},
		StoreWorkout: {DefaultTTL: 15 * time.Minute, MaxSize: 100, Persist: true},
		StoreImages:  {DefaultTTL: 30 * time.Minute, MaxSize: 200},
	}
}

// Manager owns the named response stores. Instances are constructed
// explicitly and injected into consumers, never shared as package state.
type Manager struct {
	stores map[string]*Store[[]byte]
}

// NewManager builds one Store per config entry. A nil snapshotter disables
// persistence regardless of the per-store flag.
func NewManager(configs map[string]StoreConfig, snapshots Snapshotter) *Manager {
	m := &Manager{stores: make(map[string]*Store[[]byte], len(configs))}
	for name, cfg := range configs {
		var snap Snapshotter
		if cfg.Persist {
			snap = snapshots
		}
		m.stores[name] = NewStore[[]byte](Options{
			Name:            name,
			DefaultTTL:      cfg.DefaultTTL,
			MaxSize:         cfg.MaxSize,
			ConcurrencySafe: true,
			Snapshots:       snap,
		})
	}
	return m
}

// Store returns the named store, or the generic API store when the name is
// unknown so callers always get a usable store back.
func (m *Manager) Store(name string) *Store[[]byte] {
	if s, ok := m.stores[name]; ok {
		return s
	}
	return m.stores[StoreAPI]
}

// InvalidatePattern removes, across every store, all entries whose key
// contains the substring. Returns the total number of removed entries.
func (m *Manager) InvalidatePattern(pattern string) int {
	total := 0
	for _, s := range m.stores {
		total += s.DeleteMatching(func(key string) bool {
			return strings.Contains(key, pattern)
		})
	}
	return total
}

// ClearAll empties every store, including persisted snapshots.
func (m *Manager) ClearAll() {
	for _, s := range m.stores {
		s.Clear()
	}
}

// StatsAll returns a per-store diagnostic snapshot.
func (m *Manager) StatsAll() map[string]Stats {
	out := make(map[string]Stats, len(m.stores))
	for name, s := range m.stores {
		out[name] = s.Stats()
	}
	return out
}

// Start launches the expiry sweep on every store with a shared interval.
func (m *Manager) Start(interval time.Duration) {
	for _, s := range m.stores {
		s.Start(interval)
	}
}

// Stop terminates all sweep goroutines.
func (m *Manager) Stop() {
	for _, s := range m.stores {
		s.Stop()
	}
}
