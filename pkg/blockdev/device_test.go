package blockdev

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/store/block/memory"
)

func TestReadBufferZeroFillsMissing(t *testing.T) {
	d := New("sda", memory.New(), 512)

	data, err := d.ReadBuffer(context.Background(), 9)
	require.NoError(t, err)
	assert.Len(t, data, 512)
	assert.Equal(t, 1, d.Stats().Pages)
}

func TestWriteSyncRead(t *testing.T) {
	store := memory.New()
	d := New("sda", store, 16)
	ctx := context.Background()

	require.NoError(t, d.WriteBuffer(1, []byte("superblock")))
	assert.Equal(t, 1, d.Stats().Dirty)

	n, err := d.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := store.ReadBlock(ctx, block.DeviceKey("sda", 1))
	require.NoError(t, err)
	assert.Equal(t, []byte("superblock"), raw)

	assert.Error(t, d.WriteBuffer(2, make([]byte, 17)))
}

func TestInvalidateDropsCleanOnly(t *testing.T) {
	d := New("sda", memory.New(), 16)
	ctx := context.Background()

	_, err := d.ReadBuffer(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, d.WriteBuffer(1, []byte("dirty")))

	n, err := d.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, d.Stats().Pages)
}

func TestInvalidateSurfacesIOError(t *testing.T) {
	store := memory.New()
	d := New("sda", store, 16)
	ctx := context.Background()

	_, err := d.ReadBuffer(ctx, 0)
	require.NoError(t, err)

	ioErr := errors.New("medium error")
	store.SetHealthError(ioErr)

	_, err = d.Invalidate(ctx)
	assert.ErrorIs(t, err, ioErr)
	assert.Equal(t, 1, d.Stats().Pages, "nothing dropped on failure")
}

func TestDiscard(t *testing.T) {
	store := memory.New()
	d := New("sda", store, 16)
	ctx := context.Background()

	require.NoError(t, d.WriteBuffer(3, []byte("x")))
	_, err := d.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Discard(ctx, 3))
	assert.Zero(t, d.Stats().Pages)
	_, err = store.ReadBlock(ctx, block.DeviceKey("sda", 3))
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func TestCloseSyncsAndRejects(t *testing.T) {
	store := memory.New()
	d := New("sda", store, 16)
	ctx := context.Background()

	require.NoError(t, d.WriteBuffer(0, []byte("x")))
	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))

	_, err := d.ReadBuffer(ctx, 0)
	assert.ErrorIs(t, err, ErrDeviceClosed)
	_, err = d.Invalidate(ctx)
	assert.ErrorIs(t, err, ErrDeviceClosed)
}
