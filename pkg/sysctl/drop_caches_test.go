package sysctl

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/sweep"
)

type fakeDropper struct {
	pagecache int
	slab      int
}

func (f *fakeDropper) DropPageCache(context.Context) *sweep.Result {
	f.pagecache++
	return &sweep.Result{Policy: sweep.Lazy}
}

func (f *fakeDropper) DropSlab(context.Context) int {
	f.slab++
	return 7
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "INFO", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text", false) })
	return &buf
}

func TestDecodeFlags(t *testing.T) {
	assert.Equal(t, Flags{PageCache: true}, DecodeFlags(1))
	assert.Equal(t, Flags{Slab: true}, DecodeFlags(2))
	assert.Equal(t, Flags{PageCache: true, Slab: true}, DecodeFlags(3))
	assert.Equal(t, Flags{Quiet: true}, DecodeFlags(4))
}

func TestWriteThreeRunsBoth(t *testing.T) {
	buf := captureLogs(t)
	d := &fakeDropper{}
	knob := New(d, false)

	out, err := knob.Write(context.Background(), 3, Caller{Comm: "bash", PID: 42})
	require.NoError(t, err)
	assert.Equal(t, 1, d.pagecache)
	assert.Equal(t, 1, d.slab)
	assert.Equal(t, 7, out.SlabFreed)
	assert.NotNil(t, out.PageCache)
	assert.True(t, out.Logged)
	assert.Equal(t, 3, knob.Read())
	assert.Contains(t, buf.String(), "bash (42): drop_caches: 3")
}

func TestWriteFourOnlySilences(t *testing.T) {
	buf := captureLogs(t)
	d := &fakeDropper{}
	knob := New(d, false)
	ctx := context.Background()

	out, err := knob.Write(ctx, 4, Caller{Comm: "sh", PID: 1})
	require.NoError(t, err)
	assert.Zero(t, d.pagecache)
	assert.Zero(t, d.slab)
	assert.True(t, out.Logged, "the write that sets quiet is still logged")
	assert.True(t, knob.Quiet())

	out, err = knob.Write(ctx, 1, Caller{Comm: "sh", PID: 2})
	require.NoError(t, err)
	assert.False(t, out.Logged)
	assert.Equal(t, 1, d.pagecache)
	assert.Equal(t, 1, strings.Count(buf.String(), "drop_caches:"))

	// Quiet is sticky.
	_, err = knob.Write(ctx, 2, Caller{Comm: "sh", PID: 3})
	require.NoError(t, err)
	assert.True(t, knob.Quiet())
	assert.Equal(t, 2, knob.Read())
}

func TestWriteOutOfRange(t *testing.T) {
	d := &fakeDropper{}
	knob := New(d, false)
	ctx := context.Background()

	_, err := knob.Write(ctx, 2, Caller{})
	require.NoError(t, err)

	for _, v := range []int{0, -1, 5, 7, 1 << 20} {
		_, err := knob.Write(ctx, v, Caller{})
		assert.ErrorIs(t, err, ErrOutOfRange, "value %d", v)
	}
	assert.Equal(t, 2, knob.Read())
	assert.Zero(t, d.pagecache)
	assert.Equal(t, 1, d.slab)
}

func TestStartsQuiet(t *testing.T) {
	buf := captureLogs(t)
	knob := New(&fakeDropper{}, true)

	out, err := knob.Write(context.Background(), 1, Caller{Comm: "cron", PID: 9})
	require.NoError(t, err)
	assert.False(t, out.Logged)
	assert.NotContains(t, buf.String(), "drop_caches")
}

func TestEngineSatisfiesDropper(t *testing.T) {
	var _ Dropper = (*sweep.Engine)(nil)
}
