package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/api/auth"
	"github.com/marmos91/pagesweep/pkg/api/handlers"
	apiMiddleware "github.com/marmos91/pagesweep/pkg/api/middleware"
	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/runtime"
)

// NewRouter creates the chi router with all middleware and routes.
//
// Read routes are always open. When jwtService is non-nil the mutating
// routes require an admin bearer token.
func NewRouter(rt *runtime.Runtime, jwtService *auth.JWTService, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	healthHandler := handlers.NewHealthHandler(rt)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/stores", healthHandler.Stores)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	if rt == nil {
		return r
	}

	sysctlHandler := handlers.NewSysctlHandler(rt)
	fsHandler := handlers.NewFilesystemHandler(rt)
	sweepHandler := handlers.NewSweepHandler(rt)
	coherenceHandler := handlers.NewCoherenceHandler(rt)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", sweepHandler.Status)
		r.Get("/vmstat", sweepHandler.VMStat)
		r.Get("/sysctl/vm/drop_caches", sysctlHandler.GetDropCaches)
		r.Get("/filesystems", fsHandler.List)
		r.Get("/filesystems/{name}", fsHandler.Get)
		r.Get("/coherence", coherenceHandler.Get)

		r.Group(func(r chi.Router) {
			if jwtService != nil {
				r.Use(apiMiddleware.JWTAuth(jwtService))
				r.Use(apiMiddleware.RequireAdmin())
			}

			r.Put("/sysctl/vm/drop_caches", sysctlHandler.PutDropCaches)
			r.Post("/sweep", sweepHandler.SweepAll)
			r.Post("/sync", sweepHandler.Sync)
			r.Post("/filesystems/{name}/sweep", fsHandler.Sweep)
			r.Post("/filesystems/{name}/invalidate", fsHandler.Invalidate)
			r.Post("/coherence/pending", coherenceHandler.AppendPending)
			r.Delete("/coherence/pending", coherenceHandler.ResetPending)
		})
	})

	return r
}

// requestLogger logs request start at DEBUG and completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
