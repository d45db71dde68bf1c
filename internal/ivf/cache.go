package ivf

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCooldown is the minimum spacing between rebuild attempts for the
// same collection when a cache miss keeps recurring.
const DefaultCooldown = 1000 * time.Millisecond

// Cache holds at most one Index per collection name. A mutation evicts its
// collection's entry immediately; a subsequent miss schedules at most one
// asynchronous rebuild, guarded by both an in-flight flag backed by a
// single-flight group (so a miss while a build runs schedules nothing)
// and a per-collection cooldown
// (so a hot, recurring miss does not thrash the CPU with rebuilds).
type Cache struct {
	cooldown time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	entries     map[string]*Index
	lastAttempt map[string]time.Time
	building    map[string]bool

	sf       singleflight.Group
	inFlight atomic.Int64
}

// NewCache creates an empty cache with the given rebuild cooldown. A
// non-positive cooldown falls back to DefaultCooldown.
func NewCache(cooldown time.Duration) *Cache {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Cache{
		cooldown:    cooldown,
		now:         time.Now,
		entries:     make(map[string]*Index),
		lastAttempt: make(map[string]time.Time),
		building:    make(map[string]bool),
	}
}

// Get returns the cached index for name, if any. The caller is still
// responsible for checking IsCompatible against the collection's current
// state: a stale entry is only evicted by an explicit Invalidate, not by Get.
func (c *Cache) Get(name string) (*Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.entries[name]
	return idx, ok
}

// Invalidate evicts name's cached index. Called on every mutation of that
// collection; does not touch the cooldown clock, so an invalidation
// immediately followed by a burst of queries still respects the cooldown
// from any recent rebuild attempt.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Store installs idx as name's cached index directly, bypassing the
// scheduler. Used by callers that build synchronously (tests, and an
// explicit warm-up path).
func (c *Cache) Store(name string, idx *Index) {
	c.mu.Lock()
	c.entries[name] = idx
	c.mu.Unlock()
}

// TryScheduleRebuild schedules an asynchronous rebuild of name's index using
// build, unless a rebuild for name is already in flight or name is within
// its cooldown window. Returns whether a rebuild was scheduled. build's
// result replaces any existing cache entry only when it reports ok=true.
func (c *Cache) TryScheduleRebuild(name string, build func() (*Index, bool)) bool {
	c.mu.Lock()
	if c.building[name] {
		c.mu.Unlock()
		return false
	}
	if last, ok := c.lastAttempt[name]; ok && c.now().Sub(last) < c.cooldown {
		c.mu.Unlock()
		return false
	}
	c.lastAttempt[name] = c.now()
	c.building[name] = true
	c.mu.Unlock()

	c.inFlight.Add(1)
	done := c.sf.DoChan(name, func() (any, error) {
		idx, ok := build()
		if ok {
			c.Store(name, idx)
		}
		return nil, nil
	})
	go func() {
		<-done
		c.mu.Lock()
		delete(c.building, name)
		c.mu.Unlock()
		c.inFlight.Add(-1)
	}()
	return true
}

// InFlightRebuilds reports the number of rebuilds currently running, for
// shutdown code that drains background work before exiting.
func (c *Cache) InFlightRebuilds() int64 {
	return c.inFlight.Load()
}
