package vfs

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/blockdev"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/store/block"
)

const (
	// DefaultPageSize is used when Options.PageSize is zero.
	DefaultPageSize = 4096
	// MinPageSize leaves room for the superblock in device block 0.
	MinPageSize = 64
)

// Options describe a filesystem to mount.
type Options struct {
	Name     string
	PageSize int
	Store    block.Store
}

// Filesystem is one mounted filesystem instance.
type Filesystem struct {
	id       uint64
	name     string
	pageSize int
	store    block.Store
	bdev     *blockdev.Device
	batcher  *pagecache.Batcher

	// umount is read-held by anyone walking the filesystem and write-held
	// by Unmount.
	umount    sync.RWMutex
	dying     atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	inodes *list.List // of *Inode, newest first
	byID   map[uint64]*Inode
	nextID uint64
}

func newFilesystem(id uint64, opts Options, batcher *pagecache.Batcher) (*Filesystem, error) {
	if opts.Name == "" {
		return nil, ErrNameRequired
	}
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize < MinPageSize {
		return nil, ErrInvalidPageSize
	}
	return &Filesystem{
		id:       id,
		name:     opts.Name,
		pageSize: opts.PageSize,
		store:    opts.Store,
		bdev:     blockdev.New(opts.Name, opts.Store, opts.PageSize),
		batcher:  batcher,
		inodes:   list.New(),
		byID:     make(map[uint64]*Inode),
		nextID:   1,
	}, nil
}

// ID is assigned at mount time.
func (fs *Filesystem) ID() uint64 { return fs.id }

// Name is the mount name.
func (fs *Filesystem) Name() string { return fs.name }

// PageSize is the size of one cached page in bytes.
func (fs *Filesystem) PageSize() int { return fs.pageSize }

// Device returns the block device under the filesystem.
func (fs *Filesystem) Device() *blockdev.Device { return fs.bdev }

// Hold blocks unmount until the returned release func is called. It fails
// if the filesystem is already going away.
func (fs *Filesystem) Hold() (release func(), err error) {
	fs.umount.RLock()
	if fs.dying.Load() {
		fs.umount.RUnlock()
		return nil, fmt.Errorf("%s: %w", fs.name, ErrFilesystemDying)
	}
	return fs.umount.RUnlock, nil
}

// AllocInode creates an inode in StateNew holding one reference. The caller
// must call UnlockNew once the inode is set up.
func (fs *Filesystem) AllocInode() (*Inode, error) {
	if fs.dying.Load() {
		return nil, fmt.Errorf("%s: %w", fs.name, ErrFilesystemDying)
	}

	fs.mu.Lock()
	ino := &Inode{
		id:      fs.nextID,
		fs:      fs,
		mapping: pagecache.NewMapping(),
		state:   StateNew,
		refs:    1,
		nlink:   1,
	}
	fs.nextID++
	ino.elem = fs.inodes.PushFront(ino)
	fs.byID[ino.id] = ino
	fs.mu.Unlock()

	return ino, nil
}

// Create allocates an inode, records it on the device and makes it visible.
// The returned inode carries one reference.
func (fs *Filesystem) Create() (*Inode, error) {
	ino, err := fs.AllocInode()
	if err != nil {
		return nil, err
	}
	if err := fs.writeInodeRecord(ino); err != nil {
		ino.mu.Lock()
		ino.nlink = 0
		ino.mu.Unlock()
		ino.UnlockNew()
		ino.Put()
		return nil, err
	}
	ino.UnlockNew()
	return ino, nil
}

// Get returns inode id with an extra reference.
func (fs *Filesystem) Get(id uint64) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, ok := fs.byID[id]
	if !ok {
		return nil, fmt.Errorf("inode %d on %s: %w", id, fs.name, ErrInodeNotFound)
	}
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.state.Unstable() {
		return nil, fmt.Errorf("inode %d on %s: %w", id, fs.name, ErrInodeUnstable)
	}
	ino.refs++
	return ino, nil
}

// Stats summarises the inode list and its page caches.
type Stats struct {
	Inodes     int `json:"inodes"`
	Referenced int `json:"referenced"`
	Unstable   int `json:"unstable"`
	Invalid    int `json:"invalid"`
	Pages      int `json:"pages"`
	Dirty      int `json:"dirty"`
	Writeback  int `json:"writeback"`
}

// Stats counts inodes and cached pages. It takes each inode's mapping
// lock in turn, so the totals are not a single consistent snapshot.
func (fs *Filesystem) Stats() Stats {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var st Stats
	for e := fs.inodes.Front(); e != nil; e = e.Next() {
		ino := e.Value.(*Inode)
		ino.mu.Lock()
		st.Inodes++
		if ino.refs > 0 {
			st.Referenced++
		}
		if ino.state.Unstable() {
			st.Unstable++
		}
		if ino.state&StateInvalid != 0 {
			st.Invalid++
		}
		ms := ino.mapping.Stats()
		ino.mu.Unlock()

		st.Pages += ms.Pages
		st.Dirty += ms.Dirty
		st.Writeback += ms.Writeback
	}
	return st
}

// Inodes returns a snapshot of every inode's Info, newest first.
func (fs *Filesystem) Inodes() []Info {
	fs.mu.Lock()
	all := make([]*Inode, 0, fs.inodes.Len())
	for e := fs.inodes.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*Inode))
	}
	fs.mu.Unlock()

	out := make([]Info, len(all))
	for i, ino := range all {
		out[i] = ino.Info()
	}
	return out
}

// MarkInvalid sets StateInvalid on every stable inode and returns the ids
// it marked. Page contents are left alone.
func (fs *Filesystem) MarkInvalid() []uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var marked []uint64
	for e := fs.inodes.Front(); e != nil; e = e.Next() {
		ino := e.Value.(*Inode)
		if ino.MarkInvalid() {
			marked = append(marked, ino.id)
		}
	}
	return marked
}

// Sync writes back every inode's dirty pages and then the device buffers.
func (fs *Filesystem) Sync(ctx context.Context) (int, error) {
	written := 0
	var firstErr error

	it := fs.Iterate(IteratorOptions{IncludeEmpty: false})
	var prev *InodeRef
	for ref := it.Next(); ref != nil; ref = it.Next() {
		prev.Release()
		n, err := ref.Inode().Writeback(ctx)
		written += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
		prev = ref
	}
	prev.Release()

	n, err := fs.bdev.Sync(ctx)
	written += n
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return written, firstErr
}

// evict tears down an inode already marked StateFreeing.
func (fs *Filesystem) evict(ctx context.Context, ino *Inode) {
	ino.mapping.Truncate()

	fs.mu.Lock()
	if ino.elem != nil {
		fs.inodes.Remove(ino.elem)
		ino.elem = nil
	}
	delete(fs.byID, ino.id)
	last := fs.inodes.Len() == 0
	fs.mu.Unlock()

	ino.mu.Lock()
	unlinked := ino.nlink == 0
	ino.mu.Unlock()

	if unlinked {
		fs.deleteInodeData(ctx, ino)
	}
	if last && fs.dying.Load() {
		_ = fs.closeDevice(ctx)
	}
}

// closeDevice closes the block device exactly once, after the last inode of
// a dying filesystem is gone.
func (fs *Filesystem) closeDevice(ctx context.Context) error {
	fs.closeOnce.Do(func() {
		fs.closeErr = fs.bdev.Close(ctx)
	})
	return fs.closeErr
}

// deleteInodeData removes the pages and the record of an unlinked inode.
func (fs *Filesystem) deleteInodeData(ctx context.Context, ino *Inode) {
	if err := fs.store.DeleteByPrefix(ctx, block.InodePrefix(fs.name, ino.id)); err != nil {
		logger.Warn("failed to delete pages of unlinked inode",
			logger.Filesystem(fs.name), logger.InodeID(ino.id), logger.Err(err))
	}
	if err := fs.bdev.Discard(ctx, ino.id); err != nil {
		logger.Warn("failed to discard inode record",
			logger.Filesystem(fs.name), logger.InodeID(ino.id), logger.Err(err))
	}
}

func (fs *Filesystem) writeInodeRecord(ino *Inode) error {
	return fs.bdev.WriteBuffer(ino.id, ino.record())
}
