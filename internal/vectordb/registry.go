package vectordb

import "sync"

// writePermit is the single-permit semaphore for one collection name,
// serializing its mutations and their WAL record ordering. Readers
// never take this lock.
type writePermit struct {
	mu   sync.Mutex
	refs int
}

// writePermits is the pruned-when-idle map of per-collection write
// permits: one permit per collection name, held for the duration of a
// mutation and its WAL append.
type writePermits struct {
	mu sync.Mutex
	m  map[string]*writePermit
}

func newWritePermits() *writePermits {
	return &writePermits{m: make(map[string]*writePermit)}
}

// acquire locks name's write permit, creating it on first use. Callers must
// pair every acquire with a release.
func (p *writePermits) acquire(name string) *writePermit {
	p.mu.Lock()
	permit, ok := p.m[name]
	if !ok {
		permit = &writePermit{}
		p.m[name] = permit
	}
	permit.refs++
	p.mu.Unlock()

	permit.mu.Lock()
	return permit
}

// release unlocks permit and, if no other caller is waiting on name's
// permit, removes it from the map so the idle map doesn't grow unbounded
// across the collection namespace's lifetime.
func (p *writePermits) release(name string, permit *writePermit) {
	permit.mu.Unlock()

	p.mu.Lock()
	permit.refs--
	if permit.refs == 0 {
		delete(p.m, name)
	}
	p.mu.Unlock()
}
