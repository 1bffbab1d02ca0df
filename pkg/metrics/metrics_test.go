package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())
	assert.Nil(t, NewSweepMetrics())
	assert.Nil(t, NewWritebackMetrics())
	assert.Nil(t, NewStoreMetrics())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reg := InitRegistry()
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
}

func TestServerExposesRuntimeMetrics(t *testing.T) {
	InitRegistry()
	t.Cleanup(Reset)

	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	assert.NoError(t, <-done)
}
