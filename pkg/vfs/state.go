// Package vfs is the in-memory filesystem layer the sweep engine walks:
// mounted filesystems, their inodes, and the page cache hanging off each
// inode.
//
// Locking order is mount guard, then Filesystem.mu, then Inode.mu, then the
// inode's page mapping. Filesystem.mu is only ever held while walking or
// editing the inode list; it is never held across page I/O.
package vfs

import (
	"errors"
	"strings"
)

// State is the lifecycle bit set of an inode. The zero value is a normal,
// fully set up inode.
type State uint32

const (
	// StateNew is set while an inode is being initialised.
	StateNew State = 1 << iota
	// StateFreeing is set once eviction has started.
	StateFreeing
	// StateWillFree is set while the last reference is being dropped and
	// dirty data is written out ahead of eviction.
	StateWillFree
	// StateInvalid tags an inode whose cached contents downstream observers
	// should consider stale. It does not affect sweep eligibility.
	StateInvalid
)

// UnstableStates are the states in which an inode must not be touched by a
// sweep or a marker pass.
const UnstableStates = StateNew | StateFreeing | StateWillFree

// Unstable reports whether any unstable bit is set.
func (s State) Unstable() bool { return s&UnstableStates != 0 }

func (s State) String() string {
	if s == 0 {
		return "normal"
	}
	var parts []string
	for _, f := range []struct {
		bit  State
		name string
	}{
		{StateNew, "new"},
		{StateFreeing, "freeing"},
		{StateWillFree, "will_free"},
		{StateInvalid, "invalid"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

var (
	ErrNotMounted      = errors.New("filesystem not mounted")
	ErrAlreadyMounted  = errors.New("filesystem already mounted")
	ErrFilesystemDying = errors.New("filesystem is being unmounted")
	ErrInodeNotFound   = errors.New("inode not found")
	ErrInodeUnstable   = errors.New("inode is being created or freed")
	ErrPageTooLarge    = errors.New("data exceeds page size")
	ErrInvalidPageSize = errors.New("page size below minimum")
	ErrNameRequired    = errors.New("filesystem name is required")
	ErrStoreRequired   = errors.New("backing store is required")
)
