package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/runtime"
)

// Server provides the control API over HTTP.
//
// Endpoints:
//   - GET /health, /health/ready, /health/stores: probes
//   - GET /api/v1/status, /api/v1/vmstat, /api/v1/filesystems[/{name}], /api/v1/coherence
//   - GET|PUT /api/v1/sysctl/vm/drop_caches
//   - POST /api/v1/sweep, /api/v1/sync
//   - POST /api/v1/filesystems/{name}/sweep, /api/v1/filesystems/{name}/invalidate
//   - POST|DELETE /api/v1/coherence/pending
//
// Mutating endpoints require an admin bearer token when a JWT secret is
// configured.
type Server struct {
	server       *http.Server
	runtime      *runtime.Runtime
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server in a stopped state. Call Start to
// begin serving requests. It fails if a JWT secret is configured but too
// short.
func NewServer(config APIConfig, rt *runtime.Runtime) (*Server, error) {
	config.ApplyDefaults()

	jwtService, err := config.NewJWTService()
	if err != nil {
		return nil, err
	}
	if jwtService == nil {
		logger.Warn("No JWT secret configured, mutating API endpoints are unauthenticated",
			"env_var", EnvControlPlaneSecret)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      NewRouter(rt, jwtService, config.RequestTimeout),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:  server,
		runtime: rt,
		config:  config,
	}, nil
}

// Start starts the API HTTP server and blocks until the context is cancelled
// or an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		logger.Debug("API endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.config.Port),
			"api", fmt.Sprintf("http://localhost:%d/api/v1", s.config.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server. It is safe to call
// multiple times and concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
