package pagecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/bufpool"
)

func recordingWriter() (WritebackFunc, func() map[uint64][]byte) {
	var mu sync.Mutex
	written := make(map[uint64][]byte)
	wb := func(_ context.Context, idx uint64, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		written[idx] = data
		return nil
	}
	return wb, func() map[uint64][]byte {
		mu.Lock()
		defer mu.Unlock()
		return written
	}
}

func TestFillLookupWrite(t *testing.T) {
	m := NewMapping()
	assert.True(t, m.Empty())

	m.Fill(0, []byte("disk"))
	got, ok := m.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, []byte("disk"), got)

	// Fill never overwrites a cached page.
	m.Fill(0, []byte("stale"))
	got, _ = m.Lookup(0)
	assert.Equal(t, []byte("disk"), got)

	m.Write(0, []byte("new"))
	got, _ = m.Lookup(0)
	assert.Equal(t, []byte("new"), got)

	st := m.Stats()
	assert.Equal(t, Stats{Pages: 1, Dirty: 1}, st)
	assert.Equal(t, []uint64{0}, m.DirtyIndexes())
}

func TestWritebackLifecycle(t *testing.T) {
	m := NewMapping()
	m.Write(4, []byte("a"))

	data, ok := m.BeginWriteback(4)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, Stats{Pages: 1, Writeback: 1}, m.Stats())

	_, ok = m.BeginWriteback(4)
	assert.False(t, ok, "already under writeback")

	m.EndWriteback(4, errors.New("io"))
	assert.Equal(t, Stats{Pages: 1, Dirty: 1}, m.Stats(), "failed writeback redirties")

	_, ok = m.BeginWriteback(4)
	require.True(t, ok)
	m.EndWriteback(4, nil)
	assert.Equal(t, Stats{Pages: 1}, m.Stats())
	assert.Nil(t, m.DirtyIndexes())
}

func TestInvalidateCleanSkipsBusyPages(t *testing.T) {
	m := NewMapping()
	m.Fill(0, []byte("clean"))
	m.Fill(1, []byte("clean"))
	m.Write(2, []byte("dirty"))
	m.Write(3, []byte("wb"))
	_, ok := m.BeginWriteback(3)
	require.True(t, ok)

	b := NewBatcher(1)
	p := m.Fill(5, []byte("pinned"))
	b.Add(m, p)

	dropped := m.InvalidateClean(0, MaxIndex)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 3, m.Len())

	_, ok = m.Lookup(0)
	assert.False(t, ok)
	_, ok = m.Lookup(5)
	assert.True(t, ok)

	b.DrainAll()
	assert.Equal(t, 1, m.InvalidateClean(0, MaxIndex))
}

func TestInvalidateCleanRange(t *testing.T) {
	m := NewMapping()
	for i := uint64(0); i < 10; i++ {
		m.Fill(i, nil)
	}

	assert.Equal(t, 3, m.InvalidateClean(2, 4))
	assert.Equal(t, 7, m.Len())
	_, ok := m.Lookup(1)
	assert.True(t, ok)
	_, ok = m.Lookup(5)
	assert.True(t, ok)
}

func TestInvalidateAllLaundersDirty(t *testing.T) {
	m := NewMapping()
	m.Fill(0, []byte("clean"))
	m.Write(1, []byte("one"))
	m.Write(2, []byte("two"))

	wb, written := recordingWriter()
	n, err := m.InvalidateAll(context.Background(), wb)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, m.Empty())
	assert.Equal(t, map[uint64][]byte{1: []byte("one"), 2: []byte("two")}, written())
}

func TestInvalidateAllWaitsForWriteback(t *testing.T) {
	m := NewMapping()
	m.Fill(0, []byte("clean"))
	m.Write(1, []byte("flying"))
	_, ok := m.BeginWriteback(1)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wb, _ := recordingWriter()
		_, err := m.InvalidateAll(context.Background(), wb)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("InvalidateAll returned while a page was under writeback")
	case <-time.After(50 * time.Millisecond):
	}

	m.EndWriteback(1, nil)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("InvalidateAll did not finish after writeback ended")
	}
	assert.True(t, m.Empty())
}

func TestInvalidateAllIgnoresPins(t *testing.T) {
	m := NewMapping()
	b := NewBatcher(2)
	b.Add(m, m.Fill(0, []byte("x")))

	wb, _ := recordingWriter()
	_, err := m.InvalidateAll(context.Background(), wb)
	require.NoError(t, err)
	assert.True(t, m.Empty())

	assert.Equal(t, 1, b.DrainAll())
}

func TestInvalidateAllLaunderError(t *testing.T) {
	m := NewMapping()
	m.Write(0, []byte("a"))
	m.Write(1, []byte("b"))

	boom := errors.New("backing store down")
	_, err := m.InvalidateAll(context.Background(), func(context.Context, uint64, []byte) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Stats{Pages: 2, Dirty: 2}, m.Stats())
}

func TestTruncateDuringWriteback(t *testing.T) {
	m := NewMapping()
	m.Write(0, []byte("a"))
	_, ok := m.BeginWriteback(0)
	require.True(t, ok)

	assert.Equal(t, 1, m.Truncate())
	m.EndWriteback(0, nil)
	assert.Equal(t, Stats{}, m.Stats())
}

func TestRemove(t *testing.T) {
	m := NewMapping()
	m.Write(1, []byte("d"))
	_, ok := m.BeginWriteback(1)
	require.True(t, ok)

	assert.True(t, m.Remove(1))
	assert.False(t, m.Remove(1))
	m.EndWriteback(1, nil)
	assert.Equal(t, Stats{}, m.Stats())
}

func TestDroppedPagesReturnBuffers(t *testing.T) {
	m := NewMapping()
	m.Fill(0, []byte("clean"))
	m.Write(1, []byte("dirty"))
	m.Write(1, []byte("dirtier"))

	before := bufpool.GlobalStats().Puts
	assert.Equal(t, 1, m.InvalidateClean(0, MaxIndex))
	assert.Equal(t, 1, m.Truncate())
	assert.Equal(t, uint64(2), bufpool.GlobalStats().Puts-before)

	data, ok := m.Lookup(1)
	assert.False(t, ok)
	assert.Nil(t, data)
}
