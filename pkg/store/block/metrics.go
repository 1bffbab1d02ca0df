package block

import (
	"context"
	"errors"
	"time"
)

// Metrics observes backing store I/O. A nil Metrics disables collection.
type Metrics interface {
	// ObserveOperation records one store call with its duration and outcome.
	ObserveOperation(storeType, operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved in direction "read" or "write".
	RecordBytes(storeType, direction string, bytes int)
}

// Instrument wraps s so that every call is reported to m. It returns s
// unchanged when m is nil.
func Instrument(s Store, storeType string, m Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, storeType: storeType, m: m}
}

type instrumented struct {
	Store
	storeType string
	m         Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.ObserveOperation(i.storeType, op, time.Since(start), err)
}

func (i *instrumented) WriteBlock(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.Store.WriteBlock(ctx, key, data)
	i.observe("write", start, err)
	if err == nil {
		i.m.RecordBytes(i.storeType, "write", len(data))
	}
	return err
}

func (i *instrumented) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.Store.ReadBlock(ctx, key)
	if errors.Is(err, ErrBlockNotFound) {
		// Misses count as successful reads.
		i.observe("read", start, nil)
		return nil, err
	}
	i.observe("read", start, err)
	if err == nil {
		i.m.RecordBytes(i.storeType, "read", len(data))
	}
	return data, err
}

func (i *instrumented) DeleteBlock(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.DeleteBlock(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) DeleteByPrefix(ctx context.Context, prefix string) error {
	start := time.Now()
	err := i.Store.DeleteByPrefix(ctx, prefix)
	i.observe("delete_prefix", start, err)
	return err
}

func (i *instrumented) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.ListByPrefix(ctx, prefix)
	i.observe("list", start, err)
	return keys, err
}

func (i *instrumented) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := i.Store.HealthCheck(ctx)
	i.observe("health", start, err)
	return err
}
