package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/metrics/prometheus"
	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/store/block/badger"
	"github.com/marmos91/pagesweep/pkg/store/block/memory"
	blocks3 "github.com/marmos91/pagesweep/pkg/store/block/s3"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

// CreateBlockStore opens the backing store described by cfg.
func CreateBlockStore(ctx context.Context, cfg StoreConfig) (block.Store, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(), nil
	case "badger":
		return createBadgerStore(cfg.Badger)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

func createBadgerStore(cfg BadgerStoreConfig) (block.Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store requires path to be set")
	}
	return badger.Open(badger.Config{
		Path:       cfg.Path,
		InMemory:   cfg.InMemory,
		SyncWrites: cfg.SyncWrites,
	})
}

func createS3Store(ctx context.Context, cfg S3StoreConfig) (block.Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 store requires bucket to be set")
	}
	return blocks3.NewFromConfig(ctx, blocks3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		KeyPrefix:       cfg.KeyPrefix,
		ForcePathStyle:  cfg.ForcePathStyle,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
}

// MountFilesystems opens each filesystem's store and mounts it on table.
// Stores are instrumented when metrics are enabled; call it once per
// registry, as the store collectors are registered here. On failure the
// filesystems mounted so far stay mounted; the caller unmounts them.
func MountFilesystems(ctx context.Context, table *vfs.MountTable, filesystems []FilesystemConfig) ([]*vfs.Filesystem, error) {
	sm := metrics.NewStoreMetrics()
	mounted := make([]*vfs.Filesystem, 0, len(filesystems))
	for _, fc := range filesystems {
		fs, err := mountFilesystem(ctx, table, fc, sm)
		if err != nil {
			return mounted, fmt.Errorf("filesystem %q: %w", fc.Name, err)
		}
		mounted = append(mounted, fs)
	}
	return mounted, nil
}

func mountFilesystem(ctx context.Context, table *vfs.MountTable, fc FilesystemConfig, sm block.Metrics) (*vfs.Filesystem, error) {
	store, err := CreateBlockStore(ctx, fc.Store)
	if err != nil {
		return nil, err
	}

	if bs, ok := store.(*badger.Store); ok {
		if err := prometheus.RegisterBadgerStore(fc.Name, bs); err != nil {
			logger.Warn("failed to register badger cache metrics", logger.Filesystem(fc.Name), logger.Err(err))
		}
	}

	fs, err := table.Mount(ctx, vfs.Options{
		Name:     fc.Name,
		PageSize: fc.PageSize.Int(),
		Store:    block.Instrument(store, fc.Store.Type, sm),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Debug("backing store attached", logger.Filesystem(fc.Name), logger.StoreType(fc.Store.Type))
	return fs, nil
}
