// Package memory is an in-process block.Store, used for scratch filesystems
// and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/marmos91/pagesweep/pkg/store/block"
)

// Store keeps blocks in a map. Data is copied on the way in and out so callers
// may reuse their buffers.
type Store struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	closed bool

	// failHealth, when set, is returned by HealthCheck. Tests use it to
	// simulate a device that stopped answering.
	failHealth error
}

// New returns an empty store.
func New() *Store {
	return &Store{blocks: make(map[string][]byte)}
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	s.blocks[key] = append([]byte(nil), data...)
	return nil
}

func (s *Store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}
	data, ok := s.blocks[key]
	if !ok {
		return nil, block.ErrBlockNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) DeleteBlock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	delete(s.blocks, key)
	return nil
}

func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	for k := range s.blocks {
		if strings.HasPrefix(k, prefix) {
			delete(s.blocks, k)
		}
	}
	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}
	keys := make([]string, 0)
	for k := range s.blocks {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	return s.failHealth
}

// SetHealthError makes HealthCheck return err until cleared with nil.
func (s *Store) SetHealthError(err error) {
	s.mu.Lock()
	s.failHealth = err
	s.mu.Unlock()
}

// Len returns the number of stored blocks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blocks = nil
	return nil
}

var _ block.Store = (*Store)(nil)
