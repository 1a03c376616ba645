// Package api implements the cache server used by the http cache backend.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/config"
	"github.com/ptrus/mobile-pipeline/db"
)

// Server is the cache server.
type Server struct {
	cfg     config.ServerConfig
	backend cache.Backend
	db      *db.DB
	logger  *slog.Logger
}

// New creates a new cache server. database may be nil, in which case run history is not served.
func New(cfg config.ServerConfig, backend cache.Backend, database *db.DB, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		backend: backend,
		db:      database,
		logger:  logger,
	}
}

// Router returns the HTTP handler with all routes and middlewares.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Setup CORS only if origins are explicitly configured.
	// Empty list means same-origin only (no CORS).
	if len(s.cfg.AllowedOrigins) > 0 {
		s.logger.Info("enabling CORS", "allowed_origins", s.cfg.AllowedOrigins)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "PUT"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
		}))
	}

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		httplog.RequestLogger(s.logger, &httplog.Options{}),
		middleware.Recoverer,
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		// Archives can be large; no request timeout on the cache routes.
		r.Get("/cache", s.handleLatest)
		r.Get("/cache/{key}", s.handleGetArchive)
		r.Head("/cache/{key}", s.handleHeadArchive)
		r.Put("/cache/{key}", s.handlePutArchive)

		r.With(middleware.Timeout(10*time.Second)).Get("/runs", s.handleListRuns)
		r.With(middleware.Timeout(10*time.Second)).Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting cache server", "addr", s.cfg.ListenAddr, "auth", s.cfg.Token != "")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
