package identity

import (
	"context"
	"time"
)

type Entry struct {
	SteamID  string
	Valid    bool
	StoredAt time.Time
}

type Cache interface {
	Get(ctx context.Context, name string) (Entry, bool, error)
	Put(ctx context.Context, name, steamID string) error
	Invalidate(ctx context.Context, name string) error
}

// MemoryCache is written only from the dispatch goroutine and takes no locks.
// Entries older than the retention are dropped; a retention <= 0 keeps them
// forever. Retention should exceed the resolver TTL so expired entries can
// still serve as a fallback.
type MemoryCache struct {
	entries   map[string]Entry
	retention time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryCache(retention time.Duration) *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]Entry),
		retention: retention,
		now:       time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, name string) (Entry, bool, error) {
	e, ok := c.entries[name]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, name)
		return Entry{}, false, nil
	}
	return e, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, name, steamID string) error {
	now := c.now()
	c.entries[name] = Entry{SteamID: steamID, Valid: true, StoredAt: now}
	c.sweep(now)
	return nil
}

// sweep runs at most once per retention period.
func (c *MemoryCache) sweep(now time.Time) {
	if c.retention <= 0 || now.Sub(c.lastSweep) < c.retention {
		return
	}
	c.lastSweep = now
	for name, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, name)
		}
	}
}

func (c *MemoryCache) expired(e Entry, now time.Time) bool {
	return c.retention > 0 && now.Sub(e.StoredAt) > c.retention
}

// Invalidate keeps the stored id around as a fallback for failed lookups.
func (c *MemoryCache) Invalidate(_ context.Context, name string) error {
	if e, ok := c.entries[name]; ok {
		e.Valid = false
		c.entries[name] = e
	}
	return nil
}

func (c *MemoryCache) Len() int {
	return len(c.entries)
}
