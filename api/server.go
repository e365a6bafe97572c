// Package api exposes the service over HTTP:
//
//	POST /v1/completions/{project}  →  answer a prompt, optionally streamed
//	POST /v1/train/{project}        →  index submitted files
//	GET  /health                    →  liveness probe
//	GET  /ready                     →  readiness probe
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/docprompt/docprompt/internal/completions"
	"github.com/docprompt/docprompt/internal/embeddings"
	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop slow-client attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 60 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the documentation service.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health      *HealthHandler
	completions *CompletionsHandler
	train       *TrainHandler
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(st *store.Store, orch *completions.Orchestrator, indexer *embeddings.Indexer, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:         mux,
		logger:      logger,
		health:      NewHealthHandler(st, logger),
		completions: NewCompletionsHandler(orch, logger),
		train:       NewTrainHandler(indexer, logger),
	}

	s.health.RegisterRoutes(mux)
	s.completions.RegisterRoutes(mux)
	s.train.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully. Streamed responses need the write deadline off, so
// WriteTimeout stays unset and slow writers are bounded by IdleTimeout and
// client disconnects instead.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
