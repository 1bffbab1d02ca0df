package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/pagesweep/pkg/runtime"
	"github.com/marmos91/pagesweep/pkg/store/block/memory"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

func newRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt := runtime.New(runtime.Options{})
	t.Cleanup(func() { _ = rt.Mounts().UnmountAll(context.Background()) })
	return rt
}

func mountMemory(t *testing.T, rt *runtime.Runtime, name string) *memory.Store {
	t.Helper()
	store := memory.New()
	if _, err := rt.Mounts().Mount(context.Background(), vfs.Options{Name: name, PageSize: 64, Store: store}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	return store
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "pagesweep" {
		t.Errorf("Expected service 'pagesweep', got '%s'", data["service"])
	}
}

func TestLiveness_ReportsUptime(t *testing.T) {
	handler := NewHealthHandler(newRuntime(t))
	w := httptest.NewRecorder()

	handler.Liveness(w, httptest.NewRequest("GET", "/health", nil))

	data := decodeResponse(t, w).Data.(map[string]interface{})
	if _, ok := data["started_at"]; !ok {
		t.Error("Expected started_at in liveness data")
	}
}

func TestReadiness_NoRuntime_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decodeResponse(t, w); resp.Error != "runtime not initialized" {
		t.Errorf("Expected error 'runtime not initialized', got '%s'", resp.Error)
	}
}

func TestReadiness_NoFilesystems_Returns503(t *testing.T) {
	handler := NewHealthHandler(newRuntime(t))
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decodeResponse(t, w); resp.Error != "no filesystems mounted" {
		t.Errorf("Expected error 'no filesystems mounted', got '%s'", resp.Error)
	}
}

func TestReadiness_WithFilesystem_ReturnsOK(t *testing.T) {
	rt := newRuntime(t)
	mountMemory(t, rt, "scratch")
	handler := NewHealthHandler(rt)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	data := decodeResponse(t, w).Data.(map[string]interface{})
	if data["filesystems"] != float64(1) {
		t.Errorf("Expected 1 filesystem, got %v", data["filesystems"])
	}
}

func TestStores_ReportsUnhealthyStore(t *testing.T) {
	rt := newRuntime(t)
	mountMemory(t, rt, "good")
	bad := mountMemory(t, rt, "bad")
	bad.SetHealthError(errors.New("connection refused"))
	handler := NewHealthHandler(rt)

	w := httptest.NewRecorder()
	handler.Stores(w, httptest.NewRequest("GET", "/health/stores", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Status != "unhealthy" {
		t.Errorf("Expected status 'unhealthy', got '%s'", resp.Status)
	}
	stores, ok := resp.Data.([]interface{})
	if !ok || len(stores) != 2 {
		t.Fatalf("Expected two store entries, got %v", resp.Data)
	}

	bad.SetHealthError(nil)
	w = httptest.NewRecorder()
	handler.Stores(w, httptest.NewRequest("GET", "/health/stores", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d after recovery, got %d", http.StatusOK, w.Code)
	}
}
