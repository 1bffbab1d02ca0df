package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pagesweep/pkg/coherence/coherencetest"
	"github.com/marmos91/pagesweep/pkg/store/block/memory"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/sysctl"
	"github.com/marmos91/pagesweep/pkg/vfs"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// recordingStore remembers every page key written, so tests can inspect
// writeback after unmount has closed the store.
type recordingStore struct {
	*memory.Store

	mu    sync.Mutex
	pages []string
}

func (s *recordingStore) WriteBlock(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, "/ino/") {
		s.mu.Lock()
		s.pages = append(s.pages, key)
		s.mu.Unlock()
	}
	return s.Store.WriteBlock(ctx, key, data)
}

func (s *recordingStore) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pages...)
}

var sweepdCaller = sysctl.Caller{Comm: "sweepd", PID: 1}

type fakeServer struct {
	port     int
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (f *fakeServer) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeServer) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeServer) Port() int { return f.port }

func (f *fakeServer) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func mountScratch(t *testing.T, rt *Runtime, name string) (*vfs.Filesystem, *recordingStore) {
	t.Helper()
	store := &recordingStore{Store: memory.New()}
	fs, err := rt.Mounts().Mount(context.Background(), vfs.Options{Name: name, PageSize: 64, Store: store})
	require.NoError(t, err)
	return fs, store
}

func TestNew(t *testing.T) {
	rt := New(Options{})

	require.NotNil(t, rt)
	assert.NotNil(t, rt.Mounts())
	assert.NotNil(t, rt.Hooks())
	assert.NotNil(t, rt.Pending())
	assert.NotNil(t, rt.Engine())
	assert.NotNil(t, rt.DropCaches())
	assert.NotNil(t, rt.Writeback())
	assert.Equal(t, DefaultShutdownTimeout, rt.shutdownTimeout)
	assert.Same(t, rt.Mounts(), rt.Engine().Mounts())
	assert.Same(t, rt.Hooks(), rt.Engine().Hooks())
}

func TestNew_QuietDropCaches(t *testing.T) {
	rt := New(Options{Quiet: true})
	assert.True(t, rt.DropCaches().Quiet())
}

func TestSweepFilesystem(t *testing.T) {
	ctx := context.Background()
	rt := New(Options{})
	t.Cleanup(func() { _ = rt.Mounts().UnmountAll(ctx) })

	fs, _ := mountScratch(t, rt, "scratch")
	ino, err := fs.Create()
	require.NoError(t, err)
	require.NoError(t, ino.WritePage(0, []byte("clean")))
	_, err = ino.Writeback(ctx)
	require.NoError(t, err)
	ino.Put()

	res, err := rt.SweepFilesystem(ctx, "scratch", sweep.Lazy)
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch"}, res.Filesystems)
	assert.Equal(t, 1, res.PagesDropped)
	assert.Same(t, res, rt.Engine().Last())

	_, err = rt.SweepFilesystem(ctx, "missing", sweep.Lazy)
	assert.ErrorIs(t, err, vfs.ErrNotMounted)
}

func TestInvalidateFilesystem(t *testing.T) {
	ctx := context.Background()
	rec := coherencetest.NewRecorder()
	rt := New(Options{})
	rt.Hooks().Install(rec.Handlers())
	t.Cleanup(func() { _ = rt.Mounts().UnmountAll(ctx) })

	fs, _ := mountScratch(t, rt, "scratch")
	for range 3 {
		ino, err := fs.Create()
		require.NoError(t, err)
		ino.Put()
	}

	n, err := rt.InvalidateFilesystem(ctx, "scratch")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, rec.Count("invalidate"))

	_, err = rt.InvalidateFilesystem(ctx, "missing")
	assert.ErrorIs(t, err, vfs.ErrNotMounted)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	rt := New(Options{})
	t.Cleanup(func() { _ = rt.Mounts().UnmountAll(ctx) })
	mountScratch(t, rt, "a")
	mountScratch(t, rt, "b")

	_, err := rt.DropCaches().Write(ctx, 3, sweepdCaller)
	require.NoError(t, err)

	st := rt.Status()
	assert.Equal(t, 2, st.Filesystems)
	assert.Equal(t, 3, st.DropCaches)
	assert.False(t, st.Quiet)
	assert.Equal(t, uint64(1), st.VMStat.DropPagecache)
	assert.Equal(t, uint64(1), st.VMStat.DropSlab)
	assert.NotNil(t, st.LastSweep)
}

func TestServe_ShutdownFlushesAndUnmounts(t *testing.T) {
	rt := New(Options{
		Writeback:        writeback.Config{Interval: time.Hour},
		WritebackEnabled: true,
		ShutdownTimeout:  5 * time.Second,
	})
	api := &fakeServer{port: 8080}
	metricsSrv := &fakeServer{port: 9090}
	rt.SetAPIServer(api)
	rt.SetMetricsServer(metricsSrv)

	fs, store := mountScratch(t, rt, "scratch")
	ino, err := fs.Create()
	require.NoError(t, err)
	require.NoError(t, ino.WritePage(0, []byte("dirty")))
	require.NoError(t, ino.WritePage(1, []byte("dirty")))
	ino.Put()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.Len(t, store.written(), 2, "dirty pages reach the store before unmount")
	assert.Empty(t, rt.Mounts().List())
	assert.True(t, api.wasStopped())
	assert.True(t, metricsSrv.wasStopped())
}

func TestServe_ServerErrorTriggersShutdown(t *testing.T) {
	rt := New(Options{})
	rt.SetAPIServer(&fakeServer{port: 8080, startErr: errors.New("address in use")})
	mountScratch(t, rt, "scratch")

	err := rt.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.Empty(t, rt.Mounts().List())
}

func TestServe_RunsOnce(t *testing.T) {
	rt := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rt.Serve(ctx), context.Canceled)
	assert.NoError(t, rt.Serve(ctx))

	assert.Panics(t, func() { rt.SetAPIServer(&fakeServer{}) })
	assert.Panics(t, func() { rt.SetMetricsServer(&fakeServer{}) })
}
