package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/store/block/badger"
	"github.com/marmos91/pagesweep/pkg/store/block/memory"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

func TestCreateBlockStore(t *testing.T) {
	ctx := t.Context()

	s, err := CreateBlockStore(ctx, StoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = CreateBlockStore(ctx, StoreConfig{Type: "badger", Badger: BadgerStoreConfig{InMemory: true}})
	require.NoError(t, err)
	assert.IsType(t, &badger.Store{}, s)
	require.NoError(t, s.Close())

	_, err = CreateBlockStore(ctx, StoreConfig{Type: "badger"})
	assert.Error(t, err)

	_, err = CreateBlockStore(ctx, StoreConfig{Type: "s3"})
	assert.Error(t, err)

	_, err = CreateBlockStore(ctx, StoreConfig{Type: "tape"})
	assert.ErrorContains(t, err, "unknown store type")
}

func TestMountFilesystems(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	ctx := t.Context()
	table := vfs.NewMountTable(pagecache.NewBatcher(pagecache.BatchSize))
	t.Cleanup(func() { _ = table.UnmountAll(ctx) })

	cfg := GetDefaultConfig()
	cfg.Filesystems = append(cfg.Filesystems, FilesystemConfig{
		Name:     "cache",
		PageSize: 8192,
		Store:    StoreConfig{Type: "badger", Badger: BadgerStoreConfig{InMemory: true}},
	})
	ApplyDefaults(cfg)

	mounted, err := MountFilesystems(ctx, table, cfg.Filesystems)
	require.NoError(t, err)
	require.Len(t, mounted, 2)
	assert.Equal(t, "scratch", mounted[0].Name())
	assert.Equal(t, 8192, mounted[1].PageSize())

	fs, err := table.Lookup("cache")
	require.NoError(t, err)
	ino, err := fs.Create()
	require.NoError(t, err)
	require.NoError(t, ino.WritePage(0, []byte("x")))
	_, err = ino.Writeback(ctx)
	require.NoError(t, err)
	ino.Put()

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pagesweep_store_operations_total"], "store operations are instrumented")
	assert.True(t, names["pagesweep_badger_cache_hits_total"], "badger cache collector is registered")
}

func TestMountFilesystems_DuplicateName(t *testing.T) {
	ctx := t.Context()
	table := vfs.NewMountTable(pagecache.NewBatcher(pagecache.BatchSize))
	t.Cleanup(func() { _ = table.UnmountAll(ctx) })

	fcs := []FilesystemConfig{
		{Name: "a", Store: StoreConfig{Type: "memory"}},
		{Name: "a", Store: StoreConfig{Type: "memory"}},
	}
	mounted, err := MountFilesystems(ctx, table, fcs)
	assert.ErrorIs(t, err, vfs.ErrAlreadyMounted)
	assert.Len(t, mounted, 1)
}
