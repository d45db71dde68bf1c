package persistence

import (
	"sync"
	"time"
)

// GroupCommitPolicy configures request coalescing.
type GroupCommitPolicy struct {
	// MaxBatch is the largest number of records folded into one flush.
	// <= 1 disables coalescing: every submit flushes on its own. NewStore
	// replaces a value <= 0 with 16, so through a Store only 1 disables it.
	MaxBatch int
	// FlushDelay is the longest a submit waits for more records to join its
	// batch before flushing anyway.
	FlushDelay time.Duration
}

// groupCommitRequest is one caller's pending append, waiting for its batch
// to be flushed.
type groupCommitRequest struct {
	record Record
	done   chan error
}

// groupCommitter coalesces concurrent Append calls into batches of up to
// MaxBatch records, each flushed with a single call to flush — one WAL
// write, at most one fsync, per batch.
type groupCommitter struct {
	policy GroupCommitPolicy
	flush  func([]Record) error

	mu      sync.Mutex
	pending []*groupCommitRequest
	timer   *time.Timer
}

func newGroupCommitter(policy GroupCommitPolicy, flush func([]Record) error) *groupCommitter {
	return &groupCommitter{policy: policy, flush: flush}
}

// submit enqueues record and blocks until the batch it lands in has been
// flushed, returning that flush's error.
func (g *groupCommitter) submit(record Record) error {
	if g.policy.MaxBatch <= 1 {
		return g.flush([]Record{record})
	}

	req := &groupCommitRequest{record: record, done: make(chan error, 1)}

	g.mu.Lock()
	g.pending = append(g.pending, req)
	full := len(g.pending) >= g.policy.MaxBatch

	var batch []*groupCommitRequest
	if full {
		batch = g.pending
		g.pending = nil
		if g.timer != nil {
			g.timer.Stop()
			g.timer = nil
		}
	} else if g.timer == nil {
		g.timer = time.AfterFunc(g.policy.FlushDelay, g.flushPending)
	}
	g.mu.Unlock()

	if batch != nil {
		g.flushBatch(batch)
	}

	return <-req.done
}

func (g *groupCommitter) flushPending() {
	g.mu.Lock()
	batch := g.pending
	g.pending = nil
	g.timer = nil
	g.mu.Unlock()

	if len(batch) > 0 {
		g.flushBatch(batch)
	}
}

func (g *groupCommitter) flushBatch(batch []*groupCommitRequest) {
	records := make([]Record, len(batch))
	for i, r := range batch {
		records[i] = r.record
	}

	err := g.flush(records)
	for _, r := range batch {
		r.done <- err
	}
}
