package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func testConfig(port int) APIConfig {
	return APIConfig{
		Port:         port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  10 * time.Second,
		JWT: JWTConfig{
			Secret: testSecret,
		},
	}
}

func TestAPIServer_Lifecycle(t *testing.T) {
	cfg := testConfig(18180)

	server, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", cfg.Port))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Expected nil on graceful shutdown, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shutdown in time")
	}
}

func TestAPIServer_Port(t *testing.T) {
	server, err := NewServer(testConfig(9999), nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	if server.Port() != 9999 {
		t.Errorf("Expected port 9999, got %d", server.Port())
	}
}

func TestAPIServer_DefaultConfig(t *testing.T) {
	server, err := NewServer(APIConfig{}, nil)
	if err != nil {
		t.Fatalf("Failed to create server without a secret: %v", err)
	}

	if server.Port() != 8080 {
		t.Errorf("Expected default port 8080, got %d", server.Port())
	}
}

func TestAPIServer_ShortSecret(t *testing.T) {
	cfg := testConfig(0)
	cfg.JWT.Secret = "short"

	if _, err := NewServer(cfg, nil); err == nil {
		t.Fatal("Expected error for a short JWT secret")
	}
}

func TestAPIServer_EnvSecretOverridesConfig(t *testing.T) {
	t.Setenv(EnvControlPlaneSecret, "environment-secret-that-is-long-enough")
	cfg := testConfig(0)

	if got := cfg.GetJWTSecret(); got != "environment-secret-that-is-long-enough" {
		t.Errorf("Expected env secret to win, got %q", got)
	}
	if !cfg.HasJWTSecret() {
		t.Error("Expected HasJWTSecret to be true")
	}
}

func TestAPIServer_RootRedirectsToHealth(t *testing.T) {
	cfg := testConfig(18182)

	server, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/", cfg.Port))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("Expected status %d, got %d", http.StatusTemporaryRedirect, resp.StatusCode)
	}
	if location := resp.Header.Get("Location"); location != "/health" {
		t.Errorf("Expected redirect to /health, got %q", location)
	}
}
