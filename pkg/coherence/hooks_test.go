package coherence_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/coherence/coherencetest"
)

func TestEmptySlotsAreNoops(t *testing.T) {
	h := coherence.NewHooks()
	assert.NotPanics(t, func() {
		h.Lock(1, 2, "fs")
		h.Sync(2, "fs")
		h.Invalidate(2, "fs")
		h.Unlock(1, 2, "fs")
	})
	assert.Equal(t, coherence.Slots{}, h.Installed())

	var nilHooks *coherence.Hooks
	assert.NotPanics(t, func() {
		nilHooks.Lock(1, 2, "fs")
		nilHooks.Guard(1, 2, "fs", func() {})
	})
	assert.Equal(t, coherence.Slots{}, nilHooks.Installed())
}

func TestSlotsAreIndependent(t *testing.T) {
	h := coherence.NewHooks()
	var synced []uint64
	h.SetSync(func(res uint64, _ string) { synced = append(synced, res) })

	assert.Equal(t, coherence.Slots{Sync: true}, h.Installed())
	h.Sync(7, "data")
	h.Invalidate(8, "data")
	assert.Equal(t, []uint64{7}, synced)

	h.SetSync(nil)
	h.Sync(9, "data")
	assert.Equal(t, []uint64{7}, synced)
	assert.Equal(t, coherence.Slots{}, h.Installed())
}

func TestGuardOrdering(t *testing.T) {
	h := coherence.NewHooks()
	rec := coherencetest.NewRecorder()
	h.Install(rec.Handlers())

	var inside bool
	h.Guard(3, 42, "data", func() { inside = true })

	assert.True(t, inside)
	assert.Equal(t, []coherencetest.Call{
		{Hook: "lock", Scope: 3, Resource: 42, Label: "data"},
		{Hook: "unlock", Scope: 3, Resource: 42, Label: "data"},
	}, rec.Calls())
	assert.Empty(t, rec.Violations())
}

func TestGuardUnlocksOnPanic(t *testing.T) {
	h := coherence.NewHooks()
	rec := coherencetest.NewRecorder()
	h.Install(rec.Handlers())

	assert.Panics(t, func() {
		h.Guard(1, 1, "x", func() { panic("boom") })
	})
	assert.Equal(t, 1, rec.Count("unlock"))
	assert.Empty(t, rec.Violations())
}

func TestConcurrentInstallAndCall(t *testing.T) {
	h := coherence.NewHooks()
	rec := coherencetest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				h.Install(coherence.Handlers{Invalidate: rec.Handlers().Invalidate})
			} else {
				h.Clear()
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.Invalidate(uint64(i), "x")
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, rec.Count("invalidate"), 1000)
}

func TestLogHandlersInstallAll(t *testing.T) {
	h := coherence.NewHooks()
	h.Install(coherence.LogHandlers())
	assert.Equal(t, coherence.Slots{Lock: true, Sync: true, Invalidate: true, Unlock: true}, h.Installed())
	h.Guard(1, 2, "fs", func() {})
}
