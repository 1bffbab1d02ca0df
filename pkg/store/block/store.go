// Package block defines the backing store that holds the authoritative copy of
// every cached page. Page caches and block-device buffers are rebuilt from it
// after invalidation.
package block

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrBlockNotFound is returned when a key has no stored data.
	ErrBlockNotFound = errors.New("block not found")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// Store is a flat key/value blob store.
//
// Keys are "/"-separated paths. Filesystems lay out their data as
//
//	{fs}/ino/{inode}/{page}      file pages
//	{fs}/dev/{block}             block-device buffers
type Store interface {
	// WriteBlock stores data under key, replacing any previous value.
	WriteBlock(ctx context.Context, key string, data []byte) error

	// ReadBlock returns the data stored under key, or ErrBlockNotFound.
	ReadBlock(ctx context.Context, key string) ([]byte, error)

	// DeleteBlock removes key. Deleting a missing key is not an error.
	DeleteBlock(ctx context.Context, key string) error

	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error

	// ListByPrefix returns every key starting with prefix, in no particular order.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// HealthCheck reports whether the store can currently serve I/O.
	HealthCheck(ctx context.Context) error

	Close() error
}

// PageKey is the key of page index idx of inode ino on filesystem fs.
func PageKey(fs string, ino, idx uint64) string {
	return InodePrefix(fs, ino) + strconv.FormatUint(idx, 10)
}

// InodePrefix is the prefix shared by every page of one inode.
func InodePrefix(fs string, ino uint64) string {
	return fmt.Sprintf("%s/ino/%d/", fs, ino)
}

// DeviceKey is the key of device block n on filesystem fs.
func DeviceKey(fs string, n uint64) string {
	return fmt.Sprintf("%s/dev/%d", fs, n)
}
