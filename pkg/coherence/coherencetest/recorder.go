// Package coherencetest provides instrumented coherence hooks for tests.
package coherencetest

import (
	"fmt"
	"sync"

	"github.com/marmos91/pagesweep/pkg/coherence"
)

// Call is one recorded hook invocation.
type Call struct {
	Hook     string
	Scope    uint64
	Resource uint64
	Label    string
}

// Recorder records every hook call and flags protected sections that
// overlap on the same resource or unlocks without a matching lock.
type Recorder struct {
	mu         sync.Mutex
	calls      []Call
	held       map[uint64]bool
	violations []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{held: make(map[uint64]bool)}
}

// Handlers returns stubs for all four slots.
func (r *Recorder) Handlers() coherence.Handlers {
	return coherence.Handlers{
		Lock:       r.lock,
		Sync:       func(res uint64, label string) { r.record(Call{Hook: "sync", Resource: res, Label: label}) },
		Invalidate: func(res uint64, label string) { r.record(Call{Hook: "invalidate", Resource: res, Label: label}) },
		Unlock:     r.unlock,
	}
}

func (r *Recorder) lock(scope, res uint64, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[res] {
		r.violations = append(r.violations, fmt.Sprintf("lock on %d while already held", res))
	}
	r.held[res] = true
	r.calls = append(r.calls, Call{Hook: "lock", Scope: scope, Resource: res, Label: label})
}

func (r *Recorder) unlock(scope, res uint64, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.held[res] {
		r.violations = append(r.violations, fmt.Sprintf("unlock on %d without lock", res))
	}
	delete(r.held, res)
	r.calls = append(r.calls, Call{Hook: "unlock", Scope: scope, Resource: res, Label: label})
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls were made to hook.
func (r *Recorder) Count(hook string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Hook == hook {
			n++
		}
	}
	return n
}

// Violations returns ordering problems seen so far, plus one entry per
// resource still locked.
func (r *Recorder) Violations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.violations...)
	for res := range r.held {
		out = append(out, fmt.Sprintf("resource %d still locked", res))
	}
	return out
}
