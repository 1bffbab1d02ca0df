package pagecache

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// BatchSize is how many pages a shard collects before releasing them.
const BatchSize = 15

type pending struct {
	m *Mapping
	p *Page
}

type shard struct {
	mu      sync.Mutex
	entries []pending
}

// Batcher collects newly cached pages in per-shard batches. A page sitting in
// a batch is pinned, which keeps lazy invalidation away from it, until the
// batch fills up or DrainAll runs.
type Batcher struct {
	shards []shard
	next   atomic.Uint32
}

// NewBatcher creates a batcher with n shards; n <= 0 uses GOMAXPROCS.
func NewBatcher(n int) *Batcher {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	b := &Batcher{shards: make([]shard, n)}
	for i := range b.shards {
		b.shards[i].entries = make([]pending, 0, BatchSize)
	}
	return b
}

// Add pins p and queues it on the next shard.
func (b *Batcher) Add(m *Mapping, p *Page) {
	m.pin(p)

	s := &b.shards[int(b.next.Add(1))%len(b.shards)]
	s.mu.Lock()
	s.entries = append(s.entries, pending{m, p})
	var full []pending
	if len(s.entries) >= BatchSize {
		full = s.entries
		s.entries = make([]pending, 0, BatchSize)
	}
	s.mu.Unlock()

	releaseBatch(full)
}

// DrainAll releases every queued page on every shard and returns how many
// were released. It is synchronous: once it returns, no page added before
// the call is still pinned by the batcher.
func (b *Batcher) DrainAll() int {
	n := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		batch := s.entries
		s.entries = make([]pending, 0, BatchSize)
		s.mu.Unlock()

		n += len(batch)
		releaseBatch(batch)
	}
	return n
}

// Pending returns the number of queued pages across all shards.
func (b *Batcher) Pending() int {
	n := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func releaseBatch(batch []pending) {
	for _, e := range batch {
		e.m.unpin(e.p)
	}
}
