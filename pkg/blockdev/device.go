// Package blockdev models the block device under a filesystem: a buffer
// cache of fixed-size device blocks in front of a block.Store.
package blockdev

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/store/block"
)

// ErrDeviceClosed is returned after Close.
var ErrDeviceClosed = errors.New("block device closed")

// Device caches device blocks read from or written to the backing store.
type Device struct {
	name      string
	blockSize int
	store     block.Store
	buffers   *pagecache.Mapping
	closed    atomic.Bool
}

// New creates a device named name whose blocks live in store.
func New(name string, store block.Store, blockSize int) *Device {
	return &Device{
		name:      name,
		blockSize: blockSize,
		store:     store,
		buffers:   pagecache.NewMapping(),
	}
}

// Name is the owning filesystem's name.
func (d *Device) Name() string { return d.name }

// BlockSize is the size of one device block in bytes.
func (d *Device) BlockSize() int { return d.blockSize }

// Store returns the backing store, shared with the filesystem's page data.
func (d *Device) Store() block.Store { return d.store }

// Stats reports the buffer cache occupancy.
func (d *Device) Stats() pagecache.Stats { return d.buffers.Stats() }

// ReadBuffer returns block n, reading it through the buffer cache. Blocks
// never written read as zeros.
func (d *Device) ReadBuffer(ctx context.Context, n uint64) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if data, ok := d.buffers.Lookup(n); ok {
		return data, nil
	}

	data, err := d.store.ReadBlock(ctx, block.DeviceKey(d.name, n))
	switch {
	case errors.Is(err, block.ErrBlockNotFound):
		data = make([]byte, d.blockSize)
	case err != nil:
		return nil, fmt.Errorf("read block %d of %s: %w", n, d.name, err)
	}
	d.buffers.Fill(n, data)
	return data, nil
}

// WriteBuffer replaces block n in the buffer cache and marks it dirty. The
// data reaches the store on the next Sync.
func (d *Device) WriteBuffer(n uint64, data []byte) error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	if len(data) > d.blockSize {
		return fmt.Errorf("block %d: %d bytes exceeds block size %d", n, len(data), d.blockSize)
	}
	d.buffers.Write(n, data)
	return nil
}

// Discard drops block n from the cache and the store.
func (d *Device) Discard(ctx context.Context, n uint64) error {
	d.buffers.Remove(n)
	return d.store.DeleteBlock(ctx, block.DeviceKey(d.name, n))
}

// Sync writes every dirty buffer to the store and returns how many were
// written. Failed buffers stay dirty; the first error is returned.
func (d *Device) Sync(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}
	written := 0
	var firstErr error
	for _, n := range d.buffers.DirtyIndexes() {
		data, ok := d.buffers.BeginWriteback(n)
		if !ok {
			continue
		}
		err := d.store.WriteBlock(ctx, block.DeviceKey(d.name, n), data)
		d.buffers.EndWriteback(n, err)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sync block %d of %s: %w", n, d.name, err)
			}
			continue
		}
		written++
	}
	return written, firstErr
}

// Invalidate drops every clean buffer. The device is probed first; if the
// backing store reports an I/O error nothing is dropped and the error is
// returned.
func (d *Device) Invalidate(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}
	if err := d.store.HealthCheck(ctx); err != nil {
		return 0, fmt.Errorf("invalidate %s: %w", d.name, err)
	}
	return d.buffers.InvalidateClean(0, pagecache.MaxIndex), nil
}

// Close syncs dirty buffers and closes the backing store.
func (d *Device) Close(ctx context.Context) error {
	if d.closed.Load() {
		return nil
	}
	_, syncErr := d.Sync(ctx)
	d.closed.Store(true)
	d.buffers.Truncate()
	return errors.Join(syncErr, d.store.Close())
}
