package coherence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// State is the coherence state of a file's pending writes.
type State int

const (
	StateNone State = iota
	StateModify
	StateShared
	StateInvalid
	StateError
)

var stateNames = [...]string{"none", "modify", "shared", "invalid", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(s, n) {
			return State(i), nil
		}
	}
	return StateNone, fmt.Errorf("unknown coherence state %q", s)
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Limits bound a PendingWriteState. MaxPathLen is the size of a path slot
// including its NUL terminator, so the longest accepted path is one byte
// shorter.
type Limits struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" json:"max_entries" validate:"gte=1"`
	MaxPathLen int `mapstructure:"max_path_len" yaml:"max_path_len" json:"max_path_len" validate:"gte=2"`
}

// DefaultLimits are the capacity of one pending-write record.
var DefaultLimits = Limits{MaxEntries: 1024, MaxPathLen: 256}

var (
	ErrPendingFull = errors.New("pending write list is full")
	ErrPathTooLong = errors.New("path exceeds maximum length")
)

// PendingWrite is one write not yet acknowledged by peers.
type PendingWrite struct {
	Path   string `json:"path"`
	FileID uint64 `json:"file_id"`
}

// PendingWriteState is the bounded list of unacknowledged writes plus the
// state tag the coordination layer assigns to them. The write path fills it
// and the coordination layer drains it; this package only enforces bounds.
type PendingWriteState struct {
	limits Limits

	mu      sync.Mutex
	state   State
	entries []PendingWrite
}

// NewPendingWriteState returns an empty record. Zero limit fields take the
// DefaultLimits value.
func NewPendingWriteState(limits Limits) *PendingWriteState {
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = DefaultLimits.MaxEntries
	}
	if limits.MaxPathLen <= 0 {
		limits.MaxPathLen = DefaultLimits.MaxPathLen
	}
	return &PendingWriteState{limits: limits}
}

// Limits returns the bounds in effect after defaults were applied.
func (p *PendingWriteState) Limits() Limits { return p.limits }

// Append records a pending write. Paths are measured in bytes.
func (p *PendingWriteState) Append(path string, fileID uint64) error {
	if len(path) >= p.limits.MaxPathLen {
		return fmt.Errorf("%w: %d >= %d", ErrPathTooLong, len(path), p.limits.MaxPathLen)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) >= p.limits.MaxEntries {
		return ErrPendingFull
	}
	p.entries = append(p.entries, PendingWrite{Path: path, FileID: fileID})
	return nil
}

// State returns the current state tag.
func (p *PendingWriteState) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState replaces the state tag; entries are untouched.
func (p *PendingWriteState) SetState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Entries returns a copy of the recorded writes in append order.
func (p *PendingWriteState) Entries() []PendingWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PendingWrite(nil), p.entries...)
}

// Len returns the number of recorded writes.
func (p *PendingWriteState) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Reset drops every entry and returns the state to StateNone.
func (p *PendingWriteState) Reset() {
	p.mu.Lock()
	p.entries = p.entries[:0]
	p.state = StateNone
	p.mu.Unlock()
}

// Snapshot is a serialisable copy of a PendingWriteState.
type Snapshot struct {
	State   State          `json:"state"`
	Entries []PendingWrite `json:"entries"`
	Limits  Limits         `json:"limits"`
}

// Snapshot copies the state, entries and limits under one lock.
func (p *PendingWriteState) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		State:   p.state,
		Entries: append([]PendingWrite{}, p.entries...),
		Limits:  p.limits,
	}
}
