package vfs

import (
	"container/list"
	"sync/atomic"
)

// IteratorOptions tune which inodes an InodeIterator yields.
type IteratorOptions struct {
	// Yielder is consulted for inodes with an empty page cache: they are
	// skipped unless a yield is due, in which case they are returned so the
	// caller gets a point to yield at. Nil never yields.
	Yielder Yielder

	// IncludeEmpty returns inodes with an empty page cache unconditionally.
	IncludeEmpty bool
}

// InodeIterator walks a filesystem's inode list without holding its lock
// between steps. Each step returns a referenced inode; the list lock and the
// inode lock are both dropped before Next returns.
//
// The caller must keep the previously returned InodeRef until the following
// Next call has returned and release it afterwards. The reference is what
// keeps the iterator's position in the list valid while the lock is not
// held. Inodes created during the walk may or may not be seen.
type InodeIterator struct {
	fs      *Filesystem
	opts    IteratorOptions
	pos     *list.Element
	started bool
}

// Iterate returns an iterator positioned before the first inode.
func (fs *Filesystem) Iterate(opts IteratorOptions) *InodeIterator {
	if opts.Yielder == nil {
		opts.Yielder = neverYield{}
	}
	return &InodeIterator{fs: fs, opts: opts}
}

// Next returns the next eligible inode, or nil when the walk is over.
// Inodes in an unstable state are never returned.
func (it *InodeIterator) Next() *InodeRef {
	fs := it.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var e *list.Element
	switch {
	case !it.started:
		it.started = true
		e = fs.inodes.Front()
	case it.pos != nil:
		e = it.pos.Next()
	}

	for ; e != nil; e = e.Next() {
		ino := e.Value.(*Inode)

		ino.mu.Lock()
		if ino.state.Unstable() {
			ino.mu.Unlock()
			continue
		}
		if !it.opts.IncludeEmpty && ino.mapping.Empty() && !it.opts.Yielder.Due() {
			ino.mu.Unlock()
			continue
		}
		ino.refs++
		ino.mu.Unlock()

		it.pos = e
		return &InodeRef{ino: ino}
	}

	it.pos = nil
	return nil
}

// InodeRef is one reference taken by an iterator.
type InodeRef struct {
	ino      *Inode
	released atomic.Bool
}

// Inode returns the referenced inode.
func (r *InodeRef) Inode() *Inode { return r.ino }

// Release drops the reference. It is safe to call on a nil ref and more than
// once; only the first call has an effect.
func (r *InodeRef) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.ino.Put()
}
