// Package pagecache holds the cached pages of one file (a Mapping) and the
// small per-shard batches that keep recently added pages pinned until they are
// drained (a Batcher).
package pagecache

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/marmos91/pagesweep/pkg/bufpool"
)

// MaxIndex is the highest page index; InvalidateClean(0, MaxIndex) covers a
// whole file.
const MaxIndex = math.MaxUint64

const btreeDegree = 16

// ErrDirtyRace is returned by InvalidateAll when writers keep dirtying pages
// faster than they can be laundered.
var ErrDirtyRace = errors.New("pages re-dirtied during invalidation")

// WritebackFunc persists the contents of page idx. It is called without any
// mapping lock held.
type WritebackFunc func(ctx context.Context, idx uint64, data []byte) error

// Page is one cached page. All fields are guarded by the owning Mapping.
// data comes from bufpool and is owned by the page: readers get copies, and
// it goes back to the pool when the page leaves the mapping.
type Page struct {
	index     uint64
	data      []byte
	dirty     bool
	writeback bool
	pins      int32
}

// Index returns the page offset in units of the filesystem page size.
func (p *Page) Index() uint64 { return p.index }

func pageLess(a, b *Page) bool { return a.index < b.index }

// Stats is a point-in-time view of a Mapping.
type Stats struct {
	Pages     int `json:"pages"`
	Dirty     int `json:"dirty"`
	Writeback int `json:"writeback"`
	Pinned    int `json:"pinned"`
}

// Mapping is the ordered set of cached pages of one file.
type Mapping struct {
	mu    sync.Mutex
	done  *sync.Cond // signalled whenever a page leaves writeback
	pages *btree.BTreeG[*Page]

	nrDirty     int
	nrWriteback int
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	m := &Mapping{pages: btree.NewG(btreeDegree, pageLess)}
	m.done = sync.NewCond(&m.mu)
	return m
}

func key(idx uint64) *Page { return &Page{index: idx} }

// Empty reports whether no pages are cached.
func (m *Mapping) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages.Len() == 0
}

// Len returns the number of cached pages.
func (m *Mapping) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages.Len()
}

// Stats counts pages by flag.
func (m *Mapping) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Pages: m.pages.Len(), Dirty: m.nrDirty, Writeback: m.nrWriteback}
	m.pages.Ascend(func(p *Page) bool {
		if p.pins > 0 {
			st.Pinned++
		}
		return true
	})
	return st
}

// Lookup returns a copy of page idx.
func (m *Mapping) Lookup(idx uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages.Get(key(idx))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), p.data...), true
}

// Fill caches data read from the backing store as a clean page. If the page
// is already cached the existing one wins and is returned.
func (m *Mapping) Fill(idx uint64, data []byte) *Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pages.Get(key(idx)); ok {
		return p
	}
	p := &Page{index: idx, data: bufpool.Clone(data)}
	m.pages.ReplaceOrInsert(p)
	return p
}

// Write replaces the contents of page idx and marks it dirty. A page under
// writeback may be redirtied; the in-flight copy is unaffected.
func (m *Mapping) Write(idx uint64, data []byte) *Page {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages.Get(key(idx))
	if !ok {
		p = &Page{index: idx}
		m.pages.ReplaceOrInsert(p)
	}
	old := p.data
	p.data = bufpool.Clone(data)
	bufpool.Put(old)
	if !p.dirty {
		p.dirty = true
		m.nrDirty++
	}
	return p
}

// DirtyIndexes returns the indexes of every dirty page, ascending.
func (m *Mapping) DirtyIndexes() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nrDirty == 0 {
		return nil
	}
	out := make([]uint64, 0, m.nrDirty)
	m.pages.Ascend(func(p *Page) bool {
		if p.dirty {
			out = append(out, p.index)
		}
		return true
	})
	return out
}

// BeginWriteback moves a dirty page into writeback and returns a snapshot of
// its contents. It reports false if the page is missing, clean, or already
// under writeback.
func (m *Mapping) BeginWriteback(idx uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages.Get(key(idx))
	if !ok || !p.dirty || p.writeback {
		return nil, false
	}
	m.startWriteback(p)
	return append([]byte(nil), p.data...), true
}

func (m *Mapping) startWriteback(p *Page) {
	p.dirty = false
	m.nrDirty--
	p.writeback = true
	m.nrWriteback++
}

// EndWriteback completes writeback of page idx. A non-nil err marks the page
// dirty again so a later pass retries it.
func (m *Mapping) EndWriteback(idx uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pages.Get(key(idx)); ok {
		m.endWriteback(p, err)
	}
}

func (m *Mapping) endWriteback(p *Page, err error) {
	if !p.writeback {
		return
	}
	p.writeback = false
	m.nrWriteback--
	if err != nil && !p.dirty {
		p.dirty = true
		m.nrDirty++
	}
	m.done.Broadcast()
}

// InvalidateClean drops every page in [start, end] that is clean, not under
// writeback and not pinned by an undrained batch. It never blocks on I/O and
// returns the number of pages dropped.
func (m *Mapping) InvalidateClean(start, end uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victims []*Page
	m.pages.AscendGreaterOrEqual(key(start), func(p *Page) bool {
		if p.index > end {
			return false
		}
		if !p.dirty && !p.writeback && p.pins == 0 {
			victims = append(victims, p)
		}
		return true
	})
	for _, p := range victims {
		m.pages.Delete(p)
		release(p)
	}
	return len(victims)
}

// maxLaunderRounds bounds how often InvalidateAll chases pages dirtied by
// concurrent writers.
const maxLaunderRounds = 8

// InvalidateAll waits for in-flight writeback, writes every dirty page out
// through wb, and then drops the whole mapping. On success the mapping is
// empty. If wb fails nothing is dropped: pages written before the failure stay
// cached clean, the rest stay dirty, and the error is returned.
func (m *Mapping) InvalidateAll(ctx context.Context, wb WritebackFunc) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for round := 0; ; round++ {
		for m.nrWriteback > 0 {
			m.done.Wait()
		}
		if m.nrDirty == 0 {
			break
		}
		if round == maxLaunderRounds {
			return 0, ErrDirtyRace
		}

		var batch []*Page
		m.pages.Ascend(func(p *Page) bool {
			if p.dirty {
				batch = append(batch, p)
			}
			return true
		})
		snaps := make([][]byte, len(batch))
		for i, p := range batch {
			m.startWriteback(p)
			snaps[i] = append([]byte(nil), p.data...)
		}

		m.mu.Unlock()
		var firstErr error
		errs := make([]error, len(batch))
		for i, p := range batch {
			if firstErr != nil {
				errs[i] = firstErr
				continue
			}
			if err := wb(ctx, p.index, snaps[i]); err != nil {
				errs[i] = err
				firstErr = err
			}
		}
		m.mu.Lock()

		for i, p := range batch {
			m.endWriteback(p, errs[i])
		}
		if firstErr != nil {
			return 0, firstErr
		}
	}

	return m.clear(), nil
}

// Remove drops page idx whatever its state and reports whether it was cached.
func (m *Mapping) Remove(idx uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages.Delete(key(idx))
	if !ok {
		return false
	}
	if p.dirty {
		p.dirty = false
		m.nrDirty--
	}
	if p.writeback {
		p.writeback = false
		m.nrWriteback--
		m.done.Broadcast()
	}
	release(p)
	return true
}

// Truncate drops every page regardless of state. Used when the owning inode
// is evicted and its data is being discarded.
func (m *Mapping) Truncate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages.Ascend(func(p *Page) bool {
		p.dirty, p.writeback = false, false
		return true
	})
	n := m.clear()
	m.nrDirty = 0
	m.nrWriteback = 0
	m.done.Broadcast()
	return n
}

// clear drops every page and returns how many there were. m.mu is held.
func (m *Mapping) clear() int {
	n := m.pages.Len()
	m.pages.Ascend(func(p *Page) bool {
		release(p)
		return true
	})
	m.pages.Clear(false)
	return n
}

// release hands the page's buffer back. Batches may still hold the page for
// its pin count, but nothing reads data once the page is out of the tree.
func release(p *Page) {
	bufpool.Put(p.data)
	p.data = nil
}

func (m *Mapping) pin(p *Page) {
	m.mu.Lock()
	p.pins++
	m.mu.Unlock()
}

func (m *Mapping) unpin(p *Page) {
	m.mu.Lock()
	if p.pins > 0 {
		p.pins--
	}
	m.mu.Unlock()
}
