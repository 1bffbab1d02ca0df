// Package coherence is the extension point through which a cluster
// coordination layer wraps local cache invalidation with cross-node lock,
// sync, invalidate and unlock actions. It defines the callback shapes and the
// small state model handed to that layer; the transport behind the callbacks
// lives elsewhere.
package coherence

import (
	"sync/atomic"
)

// LockFunc acquires a cross-node lock on resource within scope. label is a
// human-readable name for the scope, used only for diagnostics.
type LockFunc func(scope, resource uint64, label string)

// UnlockFunc releases what the matching LockFunc acquired.
type UnlockFunc func(scope, resource uint64, label string)

// SyncFunc pushes the local write state of resource to peers.
type SyncFunc func(resource uint64, label string)

// InvalidateFunc asks peers to drop their copy of resource.
type InvalidateFunc func(resource uint64, label string)

// Handlers groups the four callbacks for Install. Nil fields leave the
// corresponding slot empty.
type Handlers struct {
	Lock       LockFunc
	Sync       SyncFunc
	Invalidate InvalidateFunc
	Unlock     UnlockFunc
}

// Hooks holds the four optional callback slots. Each slot can be set or
// cleared at any time from any goroutine. Calling an empty slot is a no-op,
// and so is every call on a nil *Hooks.
type Hooks struct {
	lock       atomic.Pointer[LockFunc]
	sync       atomic.Pointer[SyncFunc]
	invalidate atomic.Pointer[InvalidateFunc]
	unlock     atomic.Pointer[UnlockFunc]
}

// NewHooks returns a table with every slot empty.
func NewHooks() *Hooks {
	return &Hooks{}
}

// SetLock installs fn in the lock slot; nil clears it.
func (h *Hooks) SetLock(fn LockFunc) {
	if fn == nil {
		h.lock.Store(nil)
		return
	}
	h.lock.Store(&fn)
}

// SetSync installs fn in the sync slot; nil clears it.
func (h *Hooks) SetSync(fn SyncFunc) {
	if fn == nil {
		h.sync.Store(nil)
		return
	}
	h.sync.Store(&fn)
}

// SetInvalidate installs fn in the invalidate slot; nil clears it.
func (h *Hooks) SetInvalidate(fn InvalidateFunc) {
	if fn == nil {
		h.invalidate.Store(nil)
		return
	}
	h.invalidate.Store(&fn)
}

// SetUnlock installs fn in the unlock slot; nil clears it.
func (h *Hooks) SetUnlock(fn UnlockFunc) {
	if fn == nil {
		h.unlock.Store(nil)
		return
	}
	h.unlock.Store(&fn)
}

// Install replaces all four slots at once.
func (h *Hooks) Install(hs Handlers) {
	h.SetLock(hs.Lock)
	h.SetSync(hs.Sync)
	h.SetInvalidate(hs.Invalidate)
	h.SetUnlock(hs.Unlock)
}

// Clear empties every slot.
func (h *Hooks) Clear() { h.Install(Handlers{}) }

// Lock calls the lock slot if set.
func (h *Hooks) Lock(scope, resource uint64, label string) {
	if h == nil {
		return
	}
	if fn := h.lock.Load(); fn != nil {
		(*fn)(scope, resource, label)
	}
}

// Unlock calls the unlock slot if set.
func (h *Hooks) Unlock(scope, resource uint64, label string) {
	if h == nil {
		return
	}
	if fn := h.unlock.Load(); fn != nil {
		(*fn)(scope, resource, label)
	}
}

// Sync calls the sync slot if set.
func (h *Hooks) Sync(resource uint64, label string) {
	if h == nil {
		return
	}
	if fn := h.sync.Load(); fn != nil {
		(*fn)(resource, label)
	}
}

// Invalidate calls the invalidate slot if set.
func (h *Hooks) Invalidate(resource uint64, label string) {
	if h == nil {
		return
	}
	if fn := h.invalidate.Load(); fn != nil {
		(*fn)(resource, label)
	}
}

// Guard runs fn between Lock and Unlock on (scope, resource). The unlock
// slot is read after fn returns, so an installer swapping slots mid-section
// sees its new unlock called. Unlock runs even if fn panics.
func (h *Hooks) Guard(scope, resource uint64, label string, fn func()) {
	h.Lock(scope, resource, label)
	defer h.Unlock(scope, resource, label)
	fn()
}

// Slots reports which slots are currently installed.
type Slots struct {
	Lock       bool `json:"lock"`
	Sync       bool `json:"sync"`
	Invalidate bool `json:"invalidate"`
	Unlock     bool `json:"unlock"`
}

// Installed returns the current slot occupancy.
func (h *Hooks) Installed() Slots {
	if h == nil {
		return Slots{}
	}
	return Slots{
		Lock:       h.lock.Load() != nil,
		Sync:       h.sync.Load() != nil,
		Invalidate: h.invalidate.Load() != nil,
		Unlock:     h.unlock.Load() != nil,
	}
}
