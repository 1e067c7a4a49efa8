package authz

import (
	"context"
	"sync"
	"time"
)

// Cache stores role sets keyed by (user, org). Every entry is tagged with the user's generation;
// Invalidate bumps the generation so all of the user's entries become unreachable at once.
type Cache interface {
	Generation(ctx context.Context, userID string) (uint64, error)
	Get(ctx context.Context, userID, orgID string, gen uint64) (RoleSet, bool, error)
	// Set stores rs for gen. Entries written for a stale generation are never returned by Get.
	Set(ctx context.Context, userID, orgID string, gen uint64, rs RoleSet) error
	Invalidate(ctx context.Context, userID string) error
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) Generation(context.Context, string) (uint64, error) { return 0, nil }
func (NopCache) Get(context.Context, string, string, uint64) (RoleSet, bool, error) {
	return RoleSet{}, false, nil
}
func (NopCache) Set(context.Context, string, string, uint64, RoleSet) error { return nil }
func (NopCache) Invalidate(context.Context, string) error { return nil }

const defaultMaxEntries = 10000

type memoryEntry struct {
	rs      RoleSet
	gen     uint64
	expires time.Time
}

// MemoryCache is a process-local Cache with a TTL. It only sees invalidations made in this process.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	seq     uint64
	floor   uint64 // generation of users absent from gens
	gens    map[string]uint64
	entries map[string]memoryEntry
}

// NewMemoryCache returns a MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		gens:       make(map[string]uint64),
		entries:    make(map[string]memoryEntry),
	}
}

func memoryKey(userID, orgID string) string { return userID + "\x00" + orgID }

func (c *MemoryCache) Generation(_ context.Context, userID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generationLocked(userID), nil
}

func (c *MemoryCache) generationLocked(userID string) uint64 {
	if g, ok := c.gens[userID]; ok {
		return g
	}
	return c.floor
}

func (c *MemoryCache) Get(_ context.Context, userID, orgID string, gen uint64) (RoleSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := memoryKey(userID, orgID)
	e, ok := c.entries[key]
	if !ok {
		return RoleSet{}, false, nil
	}
	if e.gen != gen || e.gen != c.generationLocked(userID) || !c.now().Before(e.expires) {
		delete(c.entries, key)
		return RoleSet{}, false, nil
	}
	return e.rs, true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID, orgID string, gen uint64, rs RoleSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generationLocked(userID) != gen {
		return nil
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[memoryKey(userID, orgID)] = memoryEntry{rs: rs, gen: gen, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.gens[userID]; !ok && len(c.gens) >= c.maxEntries {
		c.resetLocked()
		return nil
	}
	c.seq++
	c.gens[userID] = c.seq
	return nil
}

// resetLocked forgets every generation and entry. Raising the floor keeps loads that read an
// old generation from repopulating the cache.
func (c *MemoryCache) resetLocked() {
	c.seq++
	c.floor = c.seq
	c.gens = make(map[string]uint64)
	c.entries = make(map[string]memoryEntry)
}

// evictLocked drops expired and stale entries, then everything if still full.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]memoryEntry)
	}
}
