// Package badger is a block.Store persisted in a BadgerDB directory.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/pagesweep/pkg/store/block"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps every table in RAM; nothing touches disk.
	InMemory bool

	// SyncWrites fsyncs every committed write.
	SyncWrites bool
}

// Store wraps a BadgerDB handle.
type Store struct {
	db *badgerdb.DB
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger: path is required")
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) check(ctx context.Context) error {
	if s.db.IsClosed() {
		return block.ErrStoreClosed
	}
	return ctx.Err()
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), append([]byte(nil), data...))
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

func (s *Store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, block.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *Store) DeleteBlock(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}
	return nil
}

// DeleteByPrefix drops matching keys. An empty prefix clears the database.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var err error
	if prefix == "" {
		err = s.db.DropAll()
	} else {
		err = s.db.DropPrefix([]byte(prefix))
	}
	if err != nil {
		return fmt.Errorf("badger drop prefix %q: %w", prefix, err)
	}
	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list %q: %w", prefix, err)
	}
	return keys, nil
}

// HealthCheck opens a read transaction, which fails once the database is
// closed or its value log is unreadable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("badger health check: %w", err)
	}
	return nil
}

// CacheStats returns the block cache hit and miss counts.
func (s *Store) CacheStats() (hits, misses uint64) {
	m := s.db.BlockCacheMetrics()
	return m.Hits(), m.Misses()
}

func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

var _ block.Store = (*Store)(nil)
