package vfs

import (
	"runtime"
	"time"
)

// DefaultTimeSlice is how long a sweep runs before it yields.
const DefaultTimeSlice = 2 * time.Millisecond

// Yielder decides when a long walk should let other goroutines run.
type Yielder interface {
	// Due reports whether a yield is pending.
	Due() bool
	// Yield gives up the processor if a yield is pending.
	Yield()
}

// TimeSliceYielder asks for a yield once per time slice. It is not safe for
// concurrent use; each walk owns its own.
type TimeSliceYielder struct {
	slice time.Duration
	since time.Time
	now   func() time.Time

	yields int
}

// NewTimeSliceYielder returns a yielder with the given slice, or
// DefaultTimeSlice when slice <= 0.
func NewTimeSliceYielder(slice time.Duration) *TimeSliceYielder {
	if slice <= 0 {
		slice = DefaultTimeSlice
	}
	return &TimeSliceYielder{slice: slice, since: time.Now(), now: time.Now}
}

// Due reports whether the current slice has run out.
func (y *TimeSliceYielder) Due() bool {
	return y.now().Sub(y.since) >= y.slice
}

// Yield gives up the processor and starts a new slice once the current
// one has run out; before that it does nothing.
func (y *TimeSliceYielder) Yield() {
	if !y.Due() {
		return
	}
	runtime.Gosched()
	y.yields++
	y.since = y.now()
}

// Yields returns how many times the walk actually yielded.
func (y *TimeSliceYielder) Yields() int { return y.yields }

type neverYield struct{}

func (neverYield) Due() bool { return false }
func (neverYield) Yield()    {}
