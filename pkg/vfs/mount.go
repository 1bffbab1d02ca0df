package vfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/pagecache"
)

// Shrinker releases reclaimable in-memory objects on request.
type Shrinker interface {
	Name() string
	// Shrink frees what it can and returns the number of objects freed.
	Shrink(ctx context.Context) (int, error)
}

// MountTable is the set of mounted filesystems.
type MountTable struct {
	batcher *pagecache.Batcher

	mu        sync.RWMutex
	byName    map[string]*Filesystem
	nextID    uint64
	shrinkers []Shrinker
}

// NewMountTable returns an empty table whose filesystems share batcher.
func NewMountTable(batcher *pagecache.Batcher) *MountTable {
	if batcher == nil {
		batcher = pagecache.NewBatcher(0)
	}
	return &MountTable{batcher: batcher, byName: make(map[string]*Filesystem), nextID: 1}
}

// Batcher returns the page batcher shared by every mounted filesystem.
func (t *MountTable) Batcher() *pagecache.Batcher { return t.batcher }

type superblock struct {
	Name     string `json:"name"`
	PageSize int    `json:"page_size"`
}

// Mount creates a filesystem from opts and adds it to the table.
func (t *MountTable) Mount(ctx context.Context, opts Options) (*Filesystem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[opts.Name]; ok {
		return nil, fmt.Errorf("%s: %w", opts.Name, ErrAlreadyMounted)
	}
	fs, err := newFilesystem(t.nextID, opts, t.batcher)
	if err != nil {
		return nil, err
	}
	if err := fs.loadSuperblock(ctx); err != nil {
		return nil, err
	}

	t.nextID++
	t.byName[fs.name] = fs
	logger.Info("filesystem mounted", logger.Filesystem(fs.name), logger.KeyFilesystemID, fs.id)
	return fs, nil
}

func (fs *Filesystem) loadSuperblock(ctx context.Context) error {
	raw, err := fs.bdev.ReadBuffer(ctx, 0)
	if err != nil {
		return fmt.Errorf("mount %s: %w", fs.name, err)
	}

	var sb superblock
	if end := indexZero(raw); end > 0 {
		if err := json.Unmarshal(raw[:end], &sb); err != nil {
			return fmt.Errorf("mount %s: corrupt superblock: %w", fs.name, err)
		}
		if sb.PageSize != fs.pageSize {
			return fmt.Errorf("mount %s: page size %d does not match on-disk %d", fs.name, fs.pageSize, sb.PageSize)
		}
		return nil
	}

	data, err := json.Marshal(superblock{Name: fs.name, PageSize: fs.pageSize})
	if err != nil {
		return err
	}
	return fs.bdev.WriteBuffer(0, data)
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// Unmount removes the filesystem from the table, writes back dirty data,
// evicts every unreferenced inode and closes the device. Inodes still
// referenced are evicted when their last reference is dropped.
func (t *MountTable) Unmount(ctx context.Context, name string) error {
	t.mu.Lock()
	fs, ok := t.byName[name]
	if ok {
		delete(t.byName, name)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotMounted)
	}

	fs.umount.Lock()
	defer fs.umount.Unlock()

	_, syncErr := fs.Sync(ctx)
	fs.dying.Store(true)

	fs.mu.Lock()
	var idle []*Inode
	busy := 0
	for e := fs.inodes.Front(); e != nil; e = e.Next() {
		ino := e.Value.(*Inode)
		ino.mu.Lock()
		switch {
		case ino.refs == 0 && !ino.state.Unstable():
			ino.state |= StateFreeing
			idle = append(idle, ino)
		default:
			busy++
		}
		ino.mu.Unlock()
	}
	fs.mu.Unlock()

	for _, ino := range idle {
		fs.evict(ctx, ino)
	}

	var closeErr error
	if busy > 0 {
		logger.Warn("busy inodes after unmount, device stays open until they are released",
			logger.Filesystem(name), "count", busy)
	} else {
		closeErr = fs.closeDevice(ctx)
	}
	logger.Info("filesystem unmounted", logger.Filesystem(name), "evicted", len(idle))
	return errors.Join(syncErr, closeErr)
}

// Lookup returns the filesystem mounted under name.
func (t *MountTable) Lookup(name string) (*Filesystem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fs, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotMounted)
	}
	return fs, nil
}

// List returns the mounted filesystems ordered by mount id.
func (t *MountTable) List() []*Filesystem {
	t.mu.RLock()
	out := make([]*Filesystem, 0, len(t.byName))
	for _, fs := range t.byName {
		out = append(out, fs)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ForEach calls fn for every mounted filesystem that is not being
// unmounted, holding it mounted for the duration of the call.
func (t *MountTable) ForEach(fn func(*Filesystem)) {
	for _, fs := range t.List() {
		release, err := fs.Hold()
		if err != nil {
			continue
		}
		fn(fs)
		release()
	}
}

// RegisterShrinker adds a shrinker beyond the per-filesystem inode
// shrinkers.
func (t *MountTable) RegisterShrinker(s Shrinker) {
	t.mu.Lock()
	t.shrinkers = append(t.shrinkers, s)
	t.mu.Unlock()
}

// Shrinkers returns every filesystem's inode shrinker followed by the
// registered ones.
func (t *MountTable) Shrinkers() []Shrinker {
	fss := t.List()

	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Shrinker, 0, len(fss)+len(t.shrinkers))
	for _, fs := range fss {
		out = append(out, fs)
	}
	return append(out, t.shrinkers...)
}

// UnmountAll unmounts every filesystem, newest first.
func (t *MountTable) UnmountAll(ctx context.Context) error {
	fss := t.List()
	var errs []error
	for i := len(fss) - 1; i >= 0; i-- {
		if err := t.Unmount(ctx, fss[i].name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
