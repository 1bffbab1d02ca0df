package vfs

import (
	"container/list"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/store/block"
)

// Inode is the in-memory representative of one file. It stays in its
// filesystem's inode list while referenced, and while unreferenced until
// reclaimed by Shrink or unmount.
type Inode struct {
	id      uint64
	fs      *Filesystem
	mapping *pagecache.Mapping

	mu    sync.Mutex
	state State
	refs  int32
	nlink uint32

	// elem is this inode's position in fs.inodes; guarded by fs.mu.
	elem *list.Element
}

// ID is unique within the filesystem and never reused.
func (ino *Inode) ID() uint64 { return ino.id }

// Filesystem returns the filesystem the inode belongs to.
func (ino *Inode) Filesystem() *Filesystem { return ino.fs }

// Mapping returns the inode's page cache.
func (ino *Inode) Mapping() *pagecache.Mapping { return ino.mapping }

// State returns a snapshot of the lifecycle bits.
func (ino *Inode) State() State {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.state
}

// Refs returns the current reference count.
func (ino *Inode) Refs() int32 {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.refs
}

// Info is a serialisable snapshot of an inode.
type Info struct {
	ID    uint64          `json:"id"`
	State string          `json:"state"`
	Refs  int32           `json:"refs"`
	Links uint32          `json:"links"`
	Cache pagecache.Stats `json:"cache"`
}

// Info snapshots the inode for listings.
func (ino *Inode) Info() Info {
	ino.mu.Lock()
	info := Info{ID: ino.id, State: ino.state.String(), Refs: ino.refs, Links: ino.nlink}
	ino.mu.Unlock()
	info.Cache = ino.mapping.Stats()
	return info
}

// UnlockNew finishes initialisation, making the inode visible to lookups
// and sweeps.
func (ino *Inode) UnlockNew() {
	ino.mu.Lock()
	ino.state &^= StateNew
	ino.mu.Unlock()
}

// MarkInvalid sets StateInvalid unless the inode is unstable, and reports
// whether it did.
func (ino *Inode) MarkInvalid() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.state.Unstable() {
		return false
	}
	ino.state |= StateInvalid
	return true
}

// Grab takes an extra reference on an inode the caller already holds.
func (ino *Inode) Grab() *Inode {
	ino.mu.Lock()
	ino.refs++
	ino.mu.Unlock()
	return ino
}

// Put drops a reference. Dropping the last reference of an unlinked inode,
// or of any inode on a filesystem being unmounted, evicts it.
func (ino *Inode) Put() {
	ino.mu.Lock()
	if ino.refs <= 0 {
		ino.mu.Unlock()
		logger.Error("inode reference underflow", logger.Filesystem(ino.fs.name), logger.InodeID(ino.id))
		return
	}
	ino.refs--
	if ino.refs > 0 || (ino.nlink > 0 && !ino.fs.dying.Load()) {
		ino.mu.Unlock()
		return
	}

	if ino.nlink > 0 && ino.mapping.Stats().Dirty > 0 {
		ino.state |= StateWillFree
		ino.mu.Unlock()

		if _, err := ino.Writeback(context.Background()); err != nil {
			logger.Warn("writeback before eviction failed",
				logger.Filesystem(ino.fs.name), logger.InodeID(ino.id), logger.Err(err))
		}

		ino.mu.Lock()
		ino.state &^= StateWillFree
	}
	ino.state |= StateFreeing
	ino.mu.Unlock()

	ino.fs.evict(context.Background(), ino)
}

// Unlink drops the link count to zero. The inode is evicted and its data
// deleted once the last reference goes.
func (ino *Inode) Unlink() error {
	ino.mu.Lock()
	if ino.state.Unstable() {
		ino.mu.Unlock()
		return ErrInodeUnstable
	}
	ino.nlink = 0
	ino.mu.Unlock()
	return ino.fs.writeInodeRecord(ino)
}

// WritePage replaces page idx with data and marks it dirty.
func (ino *Inode) WritePage(idx uint64, data []byte) error {
	if len(data) > ino.fs.pageSize {
		return fmt.Errorf("page %d of inode %d: %w", idx, ino.id, ErrPageTooLarge)
	}
	p := ino.mapping.Write(idx, data)
	ino.fs.batcher.Add(ino.mapping, p)
	return nil
}

// ReadPage returns page idx, filling the cache from the backing store on a
// miss. Pages never written read as zeros.
func (ino *Inode) ReadPage(ctx context.Context, idx uint64) ([]byte, error) {
	if data, ok := ino.mapping.Lookup(idx); ok {
		return data, nil
	}

	data, err := ino.fs.store.ReadBlock(ctx, block.PageKey(ino.fs.name, ino.id, idx))
	switch {
	case errors.Is(err, block.ErrBlockNotFound):
		data = make([]byte, ino.fs.pageSize)
	case err != nil:
		return nil, fmt.Errorf("read page %d of inode %d: %w", idx, ino.id, err)
	}

	p := ino.mapping.Fill(idx, data)
	ino.fs.batcher.Add(ino.mapping, p)
	return data, nil
}

// Launder writes one page to the backing store. It satisfies
// pagecache.WritebackFunc.
func (ino *Inode) Launder(ctx context.Context, idx uint64, data []byte) error {
	return ino.fs.store.WriteBlock(ctx, block.PageKey(ino.fs.name, ino.id, idx), data)
}

// Writeback writes every dirty page to the backing store and returns how many
// were written. Pages that fail stay dirty; the first error is returned.
func (ino *Inode) Writeback(ctx context.Context) (int, error) {
	written := 0
	var firstErr error
	for _, idx := range ino.mapping.DirtyIndexes() {
		data, ok := ino.mapping.BeginWriteback(idx)
		if !ok {
			continue
		}
		err := ino.Launder(ctx, idx, data)
		ino.mapping.EndWriteback(idx, err)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("writeback page %d of inode %d: %w", idx, ino.id, err)
			}
			continue
		}
		written++
	}
	return written, firstErr
}

const inodeRecordSize = 16

func (ino *Inode) record() []byte {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	buf := make([]byte, inodeRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], ino.id)
	binary.LittleEndian.PutUint32(buf[8:12], ino.nlink)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(ino.state&StateInvalid))
	return buf
}
